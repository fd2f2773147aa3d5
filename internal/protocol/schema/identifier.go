package schema

import (
	"cmp"
	"fmt"
	"strings"
)

// Direction is the side of the connection that receives a packet.
type Direction uint8

const (
	ClientBound Direction = iota
	ServerBound
)

var Directions = []Direction{ClientBound, ServerBound}

func (d Direction) String() string {
	switch d {
	case ClientBound:
		return "clientbound"
	case ServerBound:
		return "serverbound"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Opposite returns the direction of replies to a packet travelling in d.
func (d Direction) Opposite() Direction {
	if d == ClientBound {
		return ServerBound
	}
	return ClientBound
}

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "clientbound", "client_bound", "client", "s2c":
		return ClientBound, nil
	case "serverbound", "server_bound", "server", "c2s":
		return ServerBound, nil
	default:
		return 0, fmt.Errorf("schema: unknown direction %q", raw)
	}
}

// Stage is a connection phase. Stages are ordered; a connection only moves
// forward through them.
type Stage uint8

const (
	Handshaking Stage = iota
	Status
	Login
	Play
)

var Stages = []Stage{Handshaking, Status, Login, Play}

func (s Stage) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Status:
		return "status"
	case Login:
		return "login"
	case Play:
		return "play"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

func (s Stage) Valid() bool {
	return s <= Play
}

func ParseStage(raw string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "handshaking", "handshake":
		return Handshaking, nil
	case "status":
		return Status, nil
	case "login":
		return Login, nil
	case "play":
		return Play, nil
	default:
		return 0, fmt.Errorf("schema: unknown stage %q", raw)
	}
}

// Identifier addresses one packet: (direction, stage, id).
type Identifier struct {
	Direction Direction
	Stage     Stage
	ID        int32
}

// Compare orders identifiers by direction, then stage, then id.
func (a Identifier) Compare(b Identifier) int {
	if c := cmp.Compare(a.Direction, b.Direction); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Stage, b.Stage); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (a Identifier) SameGroup(b Identifier) bool {
	return a.Direction == b.Direction && a.Stage == b.Stage
}

func (a Identifier) String() string {
	return fmt.Sprintf("%s/%s/0x%02X", a.Direction, a.Stage, a.ID)
}
