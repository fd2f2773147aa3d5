package frame

import (
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/protoforge/internal/protocol/wire"
)

// DefaultMaxFrameSize is the largest length a three-byte VarInt prefix can
// carry.
const DefaultMaxFrameSize = 1<<21 - 1

var (
	ErrFrameTooLarge  = errors.New("frame: frame too large")
	ErrNegativeLength = errors.New("frame: negative frame length")
)

// State is the delimiter's position within the byte stream.
type State uint8

const (
	AwaitingLength State = iota
	AwaitingBody
)

func (s State) String() string {
	switch s {
	case AwaitingLength:
		return "awaiting_length"
	case AwaitingBody:
		return "awaiting_body"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Delimiter splits a byte stream into VarInt length-prefixed frames.
//
// It keeps no copy of the stream. The caller passes the unconsumed bytes to
// Next and advances by the returned count, which can be non-zero even when
// no frame is produced (the length prefix was read and the body is pending).
type Delimiter struct {
	max    int
	state  State
	length int
}

func NewDelimiter(max int) *Delimiter {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	return &Delimiter{max: max}
}

func (d *Delimiter) State() State { return d.state }

// Pending reports the declared body length while in AwaitingBody.
func (d *Delimiter) Pending() int {
	if d.state != AwaitingBody {
		return 0
	}
	return d.length
}

func (d *Delimiter) Max() int { return d.max }

func (d *Delimiter) Reset() {
	d.state = AwaitingLength
	d.length = 0
}

// Next returns the next complete frame at the front of buf together with the
// number of bytes consumed. A nil frame with a nil error means more bytes are
// needed. The returned frame aliases buf.
func (d *Delimiter) Next(buf []byte) ([]byte, int, error) {
	consumed := 0
	if d.state == AwaitingLength {
		n, size, err := wire.DecodeVarInt(buf)
		if errors.Is(err, wire.ErrNotEnoughBytes) {
			return nil, 0, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("frame: length prefix: %w", err)
		}
		if n < 0 {
			return nil, 0, fmt.Errorf("%w: %w: %d", wire.ErrMalformed, ErrNegativeLength, n)
		}
		if int(n) > d.max {
			return nil, 0, fmt.Errorf("%w: %w: %d > %d", ErrFrameTooLarge, wire.ErrValueTooLarge, n, d.max)
		}
		d.state = AwaitingBody
		d.length = int(n)
		consumed = size
		buf = buf[size:]
	}
	if len(buf) < d.length {
		return nil, consumed, nil
	}
	out := buf[:d.length:d.length]
	consumed += d.length
	d.Reset()
	return out, consumed, nil
}

// Append writes payload to dst as one frame.
func Append(dst, payload []byte, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	if len(payload) > max || len(payload) > math.MaxInt32 {
		return dst, fmt.Errorf("%w: %w: %d > %d", ErrFrameTooLarge, wire.ErrValueTooLarge, len(payload), max)
	}
	dst = wire.AppendVarInt(dst, int32(len(payload)))
	return append(dst, payload...), nil
}

// Split returns every complete frame in buf and the number of bytes they
// occupy. It is a convenience for whole-buffer inputs such as captures.
func Split(buf []byte, max int) ([][]byte, int, error) {
	d := NewDelimiter(max)
	var frames [][]byte
	off := 0
	for {
		f, n, err := d.Next(buf[off:])
		if err != nil {
			return frames, off, err
		}
		if f == nil {
			return frames, off, nil
		}
		off += n
		frames = append(frames, f)
	}
}
