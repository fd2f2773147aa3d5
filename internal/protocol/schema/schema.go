package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
)

var (
	ErrDuplicateIdentifier = errors.New("schema: duplicate packet identifier")
	ErrDuplicateShared     = errors.New("schema: duplicate shared type")
)

// Packet is one schema entry: an identifier and its payload type. The
// payload type's name is the packet name.
type Packet struct {
	Identifier
	Type CustomType
}

func (p Packet) Name() string {
	if p.Type == nil {
		return ""
	}
	return p.Type.TypeName()
}

// Packets is an ordered map from Identifier to Packet. Iteration order is
// Identifier.Compare order, so every (direction, stage) group is one
// contiguous run.
type Packets struct {
	entries []Packet
}

func (ps *Packets) search(id Identifier) (int, bool) {
	return slices.BinarySearchFunc(ps.entries, id, func(p Packet, target Identifier) int {
		return p.Identifier.Compare(target)
	})
}

// Insert adds p in order. An identifier may only be inserted once.
func (ps *Packets) Insert(p Packet) error {
	i, found := ps.search(p.Identifier)
	if found {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, p.Identifier)
	}
	ps.entries = slices.Insert(ps.entries, i, p)
	return nil
}

func (ps *Packets) Len() int {
	return len(ps.entries)
}

// All returns the packets in order. The slice must not be modified.
func (ps *Packets) All() []Packet {
	return ps.entries
}

func (ps *Packets) Lookup(id Identifier) (Packet, bool) {
	i, found := ps.search(id)
	if !found {
		return Packet{}, false
	}
	return ps.entries[i], true
}

// Split returns the index of the first packet whose identifier is >= boundary.
func (ps *Packets) Split(boundary Identifier) int {
	i, _ := ps.search(boundary)
	return i
}

// Group returns the contiguous run of packets for one (direction, stage).
func (ps *Packets) Group(d Direction, s Stage) []Packet {
	lo := ps.Split(Identifier{Direction: d, Stage: s, ID: minID})
	hi := lo
	for hi < len(ps.entries) && ps.entries[hi].Direction == d && ps.entries[hi].Stage == s {
		hi++
	}
	return ps.entries[lo:hi:hi]
}

const minID = -1 << 31

// Protocol is a versioned packet set plus the shared type namespace. It is
// built once, validated once, and read-only afterwards. GameVersion and
// MajorVersion are optional release labels such as "1.20.1" and "1.20".
type Protocol struct {
	Version      uint64
	GameVersion  string
	MajorVersion string
	Packets      Packets
	Shared       map[string]CustomType
}

// Label returns the protocol number with the release label when one is set.
func (p *Protocol) Label() string {
	if p.GameVersion == "" {
		return strconv.FormatUint(p.Version, 10)
	}
	return fmt.Sprintf("%d (%s)", p.Version, p.GameVersion)
}

func New(version uint64) *Protocol {
	return &Protocol{Version: version, Shared: make(map[string]CustomType)}
}

func (p *Protocol) AddPacket(d Direction, s Stage, id int32, t CustomType) error {
	return p.Packets.Insert(Packet{Identifier: Identifier{Direction: d, Stage: s, ID: id}, Type: t})
}

func (p *Protocol) AddShared(t CustomType) error {
	if p.Shared == nil {
		p.Shared = make(map[string]CustomType)
	}
	name := t.TypeName()
	if _, exists := p.Shared[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateShared, name)
	}
	p.Shared[name] = t
	return nil
}

// SharedNames returns the shared type names in sorted order.
func (p *Protocol) SharedNames() []string {
	names := make([]string, 0, len(p.Shared))
	for name := range p.Shared {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MinSize returns the fewest bytes any encoding of t occupies. Recursive
// shared references count as zero.
func (p *Protocol) MinSize(t FieldType) int {
	return p.minSize(t, map[string]bool{})
}

func (p *Protocol) minSize(t FieldType, visiting map[string]bool) int {
	switch t := t.(type) {
	case Integer:
		return t.Kind.MinSize()
	case Float:
		if t.Kind == F32 {
			return 4
		}
		return 8
	case Bool, String, NBT, Option:
		return 1
	case UUID:
		return 16
	case Array:
		switch l := t.Length.(type) {
		case FixedLength:
			return l.N * p.minSize(t.Elem, visiting)
		case PrefixedLength:
			return l.Kind.MinSize()
		default:
			return 0
		}
	case Key:
		return p.minSize(t.Inner, visiting)
	case Custom:
		return p.customMinSize(t.Type, visiting)
	case Shared:
		if visiting[t.Name] {
			return 0
		}
		ct, ok := p.Shared[t.Name]
		if !ok {
			return 0
		}
		visiting[t.Name] = true
		defer delete(visiting, t.Name)
		return p.customMinSize(ct, visiting)
	default:
		return 0
	}
}

func (p *Protocol) customMinSize(t CustomType, visiting map[string]bool) int {
	switch t := t.(type) {
	case *Struct:
		n := 0
		for _, f := range t.Fields {
			n += p.minSize(f.Type, visiting)
		}
		return n
	case *Enum:
		prefix := 0
		if ps, ok := t.Selector.(PrefixedSelector); ok {
			prefix = p.minSize(ps.Type, visiting)
		}
		least := -1
		for _, v := range t.Variants {
			if n := p.customMinSize(v.Type, visiting); least < 0 || n < least {
				least = n
			}
		}
		if least < 0 {
			least = 0
		}
		return prefix + least
	case *BitField:
		return t.Slot.MinSize()
	case *BitFlags:
		return t.Slot.MinSize()
	default:
		return 0
	}
}
