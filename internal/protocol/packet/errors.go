package packet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/protoforge/internal/protocol/schema"
)

var (
	ErrNoVariant      = errors.New("packet: no enum variant matches selector")
	ErrTrailingBytes  = errors.New("packet: trailing bytes after packet")
	ErrValueType      = errors.New("packet: value has the wrong type")
	ErrMissingField   = errors.New("packet: missing field")
	ErrLengthMismatch = errors.New("packet: array length does not match")
	ErrUnknownFlag    = errors.New("packet: unknown flag")
	ErrWrongGroup     = errors.New("packet: packet does not belong to this group")
	ErrNoDefinition   = errors.New("packet: packet has no definition")
)

// NonExistentPacketError reports an id with no definition in the current
// group.
type NonExistentPacketError struct {
	Direction schema.Direction
	Stage     schema.Stage
	ID        int32
}

func (e *NonExistentPacketError) Error() string {
	return fmt.Sprintf("packet: no packet 0x%02X in %s/%s", e.ID, e.Direction, e.Stage)
}

// DecodeError wraps a failure while decoding one packet with the field chain
// that was being read.
type DecodeError struct {
	Direction schema.Direction
	Stage     schema.Stage
	ID        int32
	Packet    string
	Path      string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("packet: decode %s/%s 0x%02X %s: %v", e.Direction, e.Stage, e.ID, e.where(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) where() string {
	if e.Path == "" {
		return e.Packet
	}
	return e.Packet + "." + e.Path
}

// EncodeError wraps a failure while encoding one packet.
type EncodeError struct {
	Direction schema.Direction
	Stage     schema.Stage
	ID        int32
	Packet    string
	Path      string
	Err       error
}

func (e *EncodeError) Error() string {
	where := e.Packet
	if e.Path != "" {
		where += "." + e.Path
	}
	return fmt.Sprintf("packet: encode %s/%s 0x%02X %s: %v", e.Direction, e.Stage, e.ID, where, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// pathError accumulates the field chain while an error unwinds.
type pathError struct {
	path []string
	err  error
}

func (e *pathError) Error() string { return e.Path() + ": " + e.err.Error() }

func (e *pathError) Unwrap() error { return e.err }

func (e *pathError) Path() string {
	var b strings.Builder
	for i, seg := range e.path {
		if i > 0 && !strings.HasPrefix(seg, "[") {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func at(seg string, err error) error {
	if pe, ok := err.(*pathError); ok {
		pe.path = append([]string{seg}, pe.path...)
		return pe
	}
	return &pathError{path: []string{seg}, err: err}
}

// splitPath separates the field chain from the underlying error.
func splitPath(err error) (string, error) {
	if pe, ok := err.(*pathError); ok {
		return pe.Path(), pe.err
	}
	return "", err
}

func typeErr(want string, got Value) error {
	return fmt.Errorf("%w: want %s, got %T", ErrValueType, want, got)
}
