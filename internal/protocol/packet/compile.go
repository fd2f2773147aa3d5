package packet

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/protoforge/internal/protocol/schema"
)

// Compile validates p and builds the codecs of every packet group. Invalid
// schemas are rejected before any codec is built.
func Compile(p *schema.Protocol) (*Protocol, error) {
	report, err := schema.Validate(p)
	if err != nil {
		return nil, err
	}
	c := &compiler{p: p, shared: make(map[string]*sharedRef, len(p.Shared))}
	out := &Protocol{
		version: p.Version,
		schema:  p,
		report:  report,
		groups:  make(map[groupKey]*Group),
	}
	for _, d := range schema.Directions {
		for _, s := range schema.Stages {
			g := newGroup(d, s)
			for _, pkt := range p.Packets.Group(d, s) {
				body, err := c.custom(pkt.Type)
				if err != nil {
					return nil, fmt.Errorf("packet: compile %s %s: %w", pkt.Identifier, pkt.Name(), err)
				}
				g.add(&Definition{ident: pkt.Identifier, name: pkt.Name(), body: body})
			}
			out.groups[groupKey{d, s}] = g
			if len(g.defs) > 0 {
				log.Debug().
					Str("direction", d.String()).
					Str("stage", s.String()).
					Int("packets", len(g.defs)).
					Msg("packet.Compile group")
			}
		}
	}
	log.Info().
		Uint64("version", p.Version).
		Int("packets", p.Packets.Len()).
		Int("shared", len(c.shared)).
		Msg("packet.Compile ok")
	return out, nil
}

type compiler struct {
	p      *schema.Protocol
	shared map[string]*sharedRef
}

func (c *compiler) custom(t schema.CustomType) (codec, error) {
	switch t := t.(type) {
	case *schema.Struct:
		return c.structType(t)
	case *schema.Enum:
		return c.enum(t)
	case *schema.BitField:
		return bitField(t), nil
	case *schema.BitFlags:
		return newBitFlagsCodec(t), nil
	case *schema.Unit:
		return unitCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported custom type %T", t)
	}
}

func (c *compiler) field(t schema.FieldType) (codec, error) {
	switch t := t.(type) {
	case schema.Integer:
		return integerCodec{kind: t.Kind}, nil
	case schema.Float:
		return floatCodec{kind: t.Kind}, nil
	case schema.Bool:
		return boolCodec{}, nil
	case schema.UUID:
		return uuidCodec{}, nil
	case schema.String:
		return stringCodec{max: t.Max}, nil
	case schema.NBT:
		return nbtCodec{}, nil
	case schema.Array:
		elem, err := c.field(t.Elem)
		if err != nil {
			return nil, err
		}
		ac := &arrayCodec{length: t.Length, elem: elem, elemMin: c.p.MinSize(t.Elem)}
		if pl, ok := t.Length.(schema.PrefixedLength); ok {
			ac.prefix = integerCodec{kind: pl.Kind}
		}
		return ac, nil
	case schema.Option:
		inner, err := c.field(t.Inner)
		if err != nil {
			return nil, err
		}
		return optionCodec{inner: inner}, nil
	case schema.Custom:
		return c.custom(t.Type)
	case schema.Shared:
		return c.sharedRef(t.Name)
	case schema.Key:
		return c.field(t.Inner)
	default:
		return nil, fmt.Errorf("unsupported field type %T", t)
	}
}

// sharedRef compiles each shared type once per compilation; every reference
// receives the same node.
func (c *compiler) sharedRef(name string) (*sharedRef, error) {
	if ref, ok := c.shared[name]; ok {
		return ref, nil
	}
	t, ok := c.p.Shared[name]
	if !ok {
		return nil, fmt.Errorf("unknown shared type %q", name)
	}
	ref := &sharedRef{name: name}
	c.shared[name] = ref
	target, err := c.custom(t)
	if err != nil {
		return nil, fmt.Errorf("shared %s: %w", name, err)
	}
	ref.target = target
	return ref, nil
}

func (c *compiler) structType(t *schema.Struct) (codec, error) {
	sc := &structCodec{name: t.Name, fields: make([]structField, len(t.Fields))}
	for i, f := range t.Fields {
		sf := structField{name: f.Name, consumer: -1}
		switch ft := f.Type.(type) {
		case schema.Constant:
			sf.role = roleConstant
		case schema.Key:
			sf.role = roleKey
			sf.consumer = c.consumerOf(t, i)
			if sf.consumer < 0 {
				return nil, fmt.Errorf("%s.%s: key field has no consumer", t.Name, f.Name)
			}
			inner, err := c.field(ft.Inner)
			if err != nil {
				return nil, err
			}
			sf.codec = inner
		default:
			fc, err := c.field(f.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
			}
			sf.codec = fc
		}
		sc.fields[i] = sf
	}
	return sc, nil
}

// consumerOf returns the index of the sibling that reads Key field i.
func (c *compiler) consumerOf(t *schema.Struct, i int) int {
	name := t.Fields[i].Name
	for j := i + 1; j < len(t.Fields); j++ {
		switch ft := t.Fields[j].Type.(type) {
		case schema.Array:
			if kl, ok := ft.Length.(schema.KeyLength); ok && kl.Field == name {
				return j
			}
		case schema.Custom:
			if selectsOn(ft.Type, name) {
				return j
			}
		case schema.Shared:
			if selectsOn(c.p.Shared[ft.Name], name) {
				return j
			}
		}
	}
	return -1
}

func selectsOn(t schema.CustomType, key string) bool {
	e, ok := t.(*schema.Enum)
	if !ok {
		return false
	}
	ks, ok := e.Selector.(schema.KeySelector)
	return ok && ks.Field == key
}

func (c *compiler) enum(t *schema.Enum) (codec, error) {
	ec := &enumCodec{
		name:      t.Name,
		byKey:     make(map[schema.Literal]int, len(t.Variants)),
		byName:    make(map[string]int, len(t.Variants)),
		ambiguous: make(map[string]bool),
	}
	switch s := t.Selector.(type) {
	case schema.PrefixedSelector:
		sel, err := c.field(s.Type)
		if err != nil {
			return nil, err
		}
		ec.selector = sel
	case schema.KeySelector:
		ec.keyField = s.Field
	}
	for i, v := range t.Variants {
		vc, err := c.custom(v.Type)
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", t.Name, v.Key, err)
		}
		name := v.Type.TypeName()
		ec.variants = append(ec.variants, enumVariant{key: v.Key, name: name, codec: vc})
		ec.byKey[v.Key] = i
		if _, dup := ec.byName[name]; dup {
			ec.ambiguous[name] = true
		}
		ec.byName[name] = i
	}
	return ec, nil
}

func bitField(t *schema.BitField) *bitFieldCodec {
	bc := &bitFieldCodec{slot: t.Slot}
	used := 0
	for _, b := range t.Fields {
		w := b.BitWidth()
		used += w
		bc.members = append(bc.members, bitMember{
			name:  b.Name,
			kind:  b.Kind,
			width: w,
			shift: t.Slot.Bits() - used,
		})
	}
	return bc
}
