package packet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/protoforge/internal/protocol/schema"
	"github.com/danmuck/protoforge/internal/protocol/wire"
)

// Definition is one compiled packet type.
type Definition struct {
	ident schema.Identifier
	name  string
	body  codec
}

func (d *Definition) Identifier() schema.Identifier { return d.ident }
func (d *Definition) ID() int32                     { return d.ident.ID }
func (d *Definition) Name() string                  { return d.name }
func (d *Definition) Direction() schema.Direction   { return d.ident.Direction }
func (d *Definition) Stage() schema.Stage           { return d.ident.Stage }

// New wraps v as a packet of this type. v is checked when the packet is
// encoded.
func (d *Definition) New(v Value) Packet {
	return Packet{def: d, Value: v}
}

// Decode reads the packet body that follows the id. The body must consume r
// exactly.
func (d *Definition) Decode(r *wire.Reader) (Packet, error) {
	v, err := d.body.decode(r, nil)
	if err == nil && r.Len() > 0 {
		err = fmt.Errorf("%w: %w: %d bytes", wire.ErrMalformed, ErrTrailingBytes, r.Len())
	}
	if err != nil {
		return Packet{}, d.decodeError(err)
	}
	return d.New(v), nil
}

func (d *Definition) decodeError(err error) error {
	path, cause := splitPath(err)
	if errors.Is(cause, wire.ErrNotEnoughBytes) {
		cause = fmt.Errorf("%w: packet truncated", wire.ErrMalformed)
	}
	return &DecodeError{
		Direction: d.ident.Direction,
		Stage:     d.ident.Stage,
		ID:        d.ident.ID,
		Packet:    d.name,
		Path:      path,
		Err:       cause,
	}
}

// Packet is a decoded or constructed packet value bound to its definition.
type Packet struct {
	def   *Definition
	Value Value
}

func (p Packet) Definition() *Definition { return p.def }

func (p Packet) Valid() bool { return p.def != nil }

func (p Packet) ID() int32 {
	if p.def == nil {
		return 0
	}
	return p.def.ID()
}

func (p Packet) Name() string {
	if p.def == nil {
		return ""
	}
	return p.def.name
}

func (p Packet) Direction() schema.Direction {
	if p.def == nil {
		return 0
	}
	return p.def.Direction()
}

func (p Packet) Stage() schema.Stage {
	if p.def == nil {
		return 0
	}
	return p.def.Stage()
}

// Encode writes the VarInt id followed by the packet fields and returns the
// number of bytes written. Nothing is left in w on error.
func (p Packet) Encode(w *wire.Writer) (int, error) {
	if p.def == nil {
		return 0, ErrNoDefinition
	}
	start := w.Len()
	w.WriteVarInt(p.def.ident.ID)
	if err := p.def.body.encode(w, p.Value); err != nil {
		w.Truncate(start)
		path, cause := splitPath(err)
		return 0, &EncodeError{
			Direction: p.def.ident.Direction,
			Stage:     p.def.ident.Stage,
			ID:        p.def.ident.ID,
			Packet:    p.def.name,
			Path:      path,
			Err:       cause,
		}
	}
	return w.Len() - start, nil
}

// AppendTo appends the encoded packet to dst.
func (p Packet) AppendTo(dst []byte) ([]byte, error) {
	w := wire.NewWriter(dst)
	if _, err := p.Encode(w); err != nil {
		return dst, err
	}
	return w.Bytes(), nil
}

type groupKey struct {
	direction schema.Direction
	stage     schema.Stage
}

// Group is the closed set of packets valid for one direction and stage.
type Group struct {
	direction schema.Direction
	stage     schema.Stage
	defs      []*Definition
	byID      map[int32]*Definition
	byName    map[string]*Definition
}

func newGroup(d schema.Direction, s schema.Stage) *Group {
	return &Group{
		direction: d,
		stage:     s,
		byID:      make(map[int32]*Definition),
		byName:    make(map[string]*Definition),
	}
}

func (g *Group) add(def *Definition) {
	g.defs = append(g.defs, def)
	g.byID[def.ID()] = def
	g.byName[def.Name()] = def
}

func (g *Group) Direction() schema.Direction { return g.direction }
func (g *Group) Stage() schema.Stage         { return g.stage }

// Definitions returns the group's packets in id order.
func (g *Group) Definitions() []*Definition { return g.defs }

func (g *Group) Lookup(id int32) (*Definition, bool) {
	def, ok := g.byID[id]
	return def, ok
}

func (g *Group) ByName(name string) (*Definition, bool) {
	def, ok := g.byName[name]
	return def, ok
}

// Contains reports whether p was built from a definition of this group.
func (g *Group) Contains(p Packet) bool {
	return p.def != nil && g.byID[p.def.ID()] == p.def
}

// Decode reads a leading VarInt id from payload and decodes the matching
// packet. Unknown ids fail with *NonExistentPacketError.
func (g *Group) Decode(payload []byte) (Packet, error) {
	r := wire.NewReader(payload)
	id, err := r.ReadVarInt()
	if err != nil {
		if errors.Is(err, wire.ErrNotEnoughBytes) {
			err = fmt.Errorf("%w: missing packet id", wire.ErrMalformed)
		}
		return Packet{}, fmt.Errorf("packet: %s/%s: %w", g.direction, g.stage, err)
	}
	def, ok := g.byID[id]
	if !ok {
		return Packet{}, &NonExistentPacketError{Direction: g.direction, Stage: g.stage, ID: id}
	}
	return def.Decode(r)
}

// Encode writes p after checking that it belongs to the group.
func (g *Group) Encode(w *wire.Writer, p Packet) (int, error) {
	if !g.Contains(p) {
		return 0, fmt.Errorf("%w: %s is not in %s/%s", ErrWrongGroup, p.Name(), g.direction, g.stage)
	}
	return p.Encode(w)
}

// Protocol is a compiled schema. It is immutable and safe for concurrent use.
type Protocol struct {
	version uint64
	schema  *schema.Protocol
	report  schema.Report
	groups  map[groupKey]*Group
}

func (p *Protocol) Version() uint64 { return p.version }

func (p *Protocol) Schema() *schema.Protocol { return p.schema }

// Report returns the non-fatal validation findings.
func (p *Protocol) Report() schema.Report { return p.report }

// Group returns the packet group for (d, s). A group without packets is
// returned empty rather than nil.
func (p *Protocol) Group(d schema.Direction, s schema.Stage) *Group {
	if g, ok := p.groups[groupKey{d, s}]; ok {
		return g
	}
	return newGroup(d, s)
}

type PacketSummary struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

type GroupSummary struct {
	Direction string          `json:"direction"`
	Stage     string          `json:"stage"`
	Packets   []PacketSummary `json:"packets"`
}

// Summary lists every non-empty group in (direction, stage) order.
func (p *Protocol) Summary() []GroupSummary {
	keys := make([]groupKey, 0, len(p.groups))
	for k, g := range p.groups {
		if len(g.defs) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].direction != keys[j].direction {
			return keys[i].direction < keys[j].direction
		}
		return keys[i].stage < keys[j].stage
	})
	out := make([]GroupSummary, 0, len(keys))
	for _, k := range keys {
		g := p.groups[k]
		gs := GroupSummary{Direction: k.direction.String(), Stage: k.stage.String()}
		for _, def := range g.defs {
			gs.Packets = append(gs.Packets, PacketSummary{ID: def.ID(), Name: def.Name()})
		}
		out = append(out, gs)
	}
	return out
}
