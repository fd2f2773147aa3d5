package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/protoforge/internal/protocol/schema"
)

var (
	ErrStageRegression   = errors.New("session: stage cannot move backwards")
	ErrInvalidTransition = errors.New("session: invalid stage transition")
	ErrEncryptionEnabled = errors.New("session: encryption already enabled")
	ErrMidFrame          = errors.New("session: encryption must start at a frame boundary")
)

// Side is the role a Conn plays. A server reads serverbound packets and
// writes clientbound ones; a client does the opposite.
type Side uint8

const (
	Server Side = iota
	Client
)

func (s Side) String() string {
	if s == Client {
		return "client"
	}
	return "server"
}

// Inbound is the direction of packets this side reads.
func (s Side) Inbound() schema.Direction {
	if s == Client {
		return schema.ClientBound
	}
	return schema.ServerBound
}

// Outbound is the direction of packets this side writes.
func (s Side) Outbound() schema.Direction { return s.Inbound().Opposite() }

// CheckTransition reports whether a connection may move from one stage to
// another. Staying in the same stage is always allowed.
func CheckTransition(from, to schema.Stage) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown stage %d", ErrInvalidTransition, to)
	}
	switch {
	case to == from:
		return nil
	case to < from:
		return fmt.Errorf("%w: %s -> %s", ErrStageRegression, from, to)
	case from == schema.Handshaking && (to == schema.Status || to == schema.Login):
		return nil
	case from == schema.Login && to == schema.Play:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
}
