package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var ErrNilProtocol = errors.New("schema: nil protocol")

// DuplicateNameError reports two packets of one (direction, stage) group
// sharing a name.
type DuplicateNameError struct {
	Direction Direction
	Stage     Stage
	Name      string
	FirstID   int32
	SecondID  int32
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf(
		"schema: %s/%s: packet name %q for id 0x%02X is already used by id 0x%02X",
		e.Direction, e.Stage, e.Name, e.SecondID, e.FirstID,
	)
}

// ValidationError is a structural defect at Path.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

func invalid(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Gap is a non-contiguous step between two consecutive ids of one group.
type Gap struct {
	Direction Direction
	Stage     Stage
	From      int32
	To        int32
}

func (g Gap) String() string {
	return fmt.Sprintf("%s/%s: skipped from 0x%02X to 0x%02X", g.Direction, g.Stage, g.From, g.To)
}

// Report carries non-fatal findings of a successful validation.
type Report struct {
	Packets int
	Shared  int
	Gaps    []Gap
}

type groupName struct {
	direction Direction
	stage     Stage
	name      string
}

// Validate checks p before it is handed to the compiler. Duplicate packet
// names inside a group and structural defects are fatal; id gaps are
// returned in the report.
func Validate(p *Protocol) (Report, error) {
	if p == nil {
		return Report{}, ErrNilProtocol
	}
	log.Debug().
		Uint64("version", p.Version).
		Int("packets", p.Packets.Len()).
		Int("shared", len(p.Shared)).
		Msg("schema.Validate")

	report := Report{Packets: p.Packets.Len(), Shared: len(p.Shared)}
	names := make(map[groupName]int32, p.Packets.Len())
	c := checker{p: p}

	var prev *Identifier
	for _, pkt := range p.Packets.All() {
		id := pkt.Identifier
		if !id.Stage.Valid() || id.Direction > ServerBound {
			return report, fail(invalid(id.String(), "unknown direction or stage"))
		}
		if prev != nil && prev.SameGroup(id) && prev.ID+1 != id.ID {
			gap := Gap{Direction: id.Direction, Stage: id.Stage, From: prev.ID, To: id.ID}
			report.Gaps = append(report.Gaps, gap)
			log.Warn().Str("gap", gap.String()).Msg("schema.Validate id gap")
		}
		prev = &id

		key := groupName{direction: id.Direction, stage: id.Stage, name: pkt.Name()}
		if first, dup := names[key]; dup {
			return report, fail(&DuplicateNameError{
				Direction: id.Direction,
				Stage:     id.Stage,
				Name:      key.name,
				FirstID:   first,
				SecondID:  id.ID,
			})
		}
		names[key] = id.ID

		if err := c.custom(id.String(), pkt.Type, false, true); err != nil {
			return report, fail(err)
		}
	}

	for _, name := range p.SharedNames() {
		t := p.Shared[name]
		path := "shared." + name
		if t != nil && t.TypeName() != name {
			return report, fail(invalid(path, "registered under a different name than %q", t.TypeName()))
		}
		if err := c.custom(path, t, true, true); err != nil {
			return report, fail(err)
		}
	}

	log.Info().
		Int("packets", report.Packets).
		Int("shared", report.Shared).
		Int("gaps", len(report.Gaps)).
		Msg("schema.Validate ok")
	return report, nil
}

func fail(err error) error {
	log.Error().Err(err).Msg("schema.Validate failed")
	return err
}

type checker struct {
	p *Protocol
}

// custom checks one custom type. keyed reports whether the type sits in a
// position where an enum may select on a sibling Key field. tail reports
// whether nothing is encoded after the type, which is the only place
// remaining-length data may appear.
func (c checker) custom(path string, t CustomType, keyed, tail bool) error {
	if t == nil {
		return invalid(path, "missing type")
	}
	if t.TypeName() == "" {
		return invalid(path, "custom type without a name")
	}
	path = path + " " + t.TypeName()
	switch t := t.(type) {
	case *Struct:
		return c.structType(path, t, tail)
	case *Enum:
		return c.enum(path, t, keyed, tail)
	case *BitField:
		return c.bitField(path, t)
	case *BitFlags:
		return c.bitFlags(path, t)
	case *Unit:
		return nil
	default:
		return invalid(path, "unsupported custom type %T", t)
	}
}

func (c checker) structType(path string, t *Struct, tail bool) error {
	seen := make(map[string]int, len(t.Fields))
	keys := make(map[string]Key)
	consumers := make(map[string]int)
	last := -1
	for i, f := range t.Fields {
		if _, isConst := f.Type.(Constant); !isConst {
			last = i
		}
	}
	for i, f := range t.Fields {
		fpath := path + "." + f.Name
		if f.Name == "" {
			return invalid(path, "field %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return invalid(fpath, "duplicate field name")
		}
		seen[f.Name] = i

		switch ft := f.Type.(type) {
		case Key:
			if _, ok := LiteralKindOf(ft.Inner); !ok {
				return invalid(fpath, "key must be an integer, bool or string, got %T", ft.Inner)
			}
			if err := c.field(fpath, ft.Inner, false, false); err != nil {
				return err
			}
			keys[f.Name] = ft
			continue
		case Constant:
			continue
		}

		inTail := tail && i == last
		if !inTail && c.openEnded(f.Type, nil) {
			return invalid(fpath, "remaining-length array must be the last encoded field")
		}
		if err := c.field(fpath, f.Type, true, inTail); err != nil {
			return err
		}
		if err := c.keyConsumer(fpath, f.Type, seen, keys, consumers); err != nil {
			return err
		}
	}
	for _, f := range t.Fields {
		if _, isKey := keys[f.Name]; !isKey {
			continue
		}
		name := f.Name
		switch n := consumers[name]; {
		case n == 0:
			return invalid(path+"."+name, "key field is not used by any later sibling")
		case n > 1:
			return invalid(path+"."+name, "key field is used by %d siblings, expected one", n)
		}
	}
	return nil
}

// keyConsumer records a field that reads a sibling Key and checks the key is
// declared earlier with a compatible type.
func (c checker) keyConsumer(path string, t FieldType, seen map[string]int, keys map[string]Key, consumers map[string]int) error {
	var name string
	var enum *Enum
	switch ft := t.(type) {
	case Array:
		if kl, ok := ft.Length.(KeyLength); ok {
			name = kl.Field
		}
	case Custom:
		enum = keySelectedEnum(ft.Type)
	case Shared:
		enum = keySelectedEnum(c.p.Shared[ft.Name])
	}
	if enum != nil {
		name = enum.Selector.(KeySelector).Field
	}
	if name == "" {
		return nil
	}
	key, ok := keys[name]
	if !ok {
		if _, exists := seen[name]; exists {
			return invalid(path, "sibling %q is not a key field", name)
		}
		return invalid(path, "key field %q must be declared before its consumer", name)
	}
	consumers[name]++

	kind, _ := LiteralKindOf(key.Inner)
	if enum == nil {
		if kind != LiteralInt {
			return invalid(path, "array length key %q must be an integer", name)
		}
		return nil
	}
	for _, v := range enum.Variants {
		if err := checkLiteral(path, v.Key, key.Inner, kind); err != nil {
			return err
		}
	}
	return nil
}

func keySelectedEnum(t CustomType) *Enum {
	e, ok := t.(*Enum)
	if !ok {
		return nil
	}
	if _, ok := e.Selector.(KeySelector); !ok {
		return nil
	}
	return e
}

// field checks a field or element type. direct is true only for a type
// declared directly as a struct field.
func (c checker) field(path string, t FieldType, direct, tail bool) error {
	switch t := t.(type) {
	case nil:
		return invalid(path, "missing field type")
	case Integer:
		if !t.Kind.Valid() {
			return invalid(path, "unknown integer kind %d", t.Kind)
		}
	case Float:
		if t.Kind > F64 {
			return invalid(path, "unknown float kind %d", t.Kind)
		}
	case Bool, UUID, NBT:
	case String:
		if t.Max < 0 {
			return invalid(path, "negative string max %d", t.Max)
		}
	case Array:
		switch l := t.Length.(type) {
		case RemainingLength:
			if c.p.MinSize(t.Elem) == 0 {
				return invalid(path, "remaining-length array element may encode to zero bytes")
			}
		case FixedLength:
			if l.N < 0 {
				return invalid(path, "negative fixed length %d", l.N)
			}
		case PrefixedLength:
			if !l.Kind.Valid() {
				return invalid(path, "unknown length prefix kind %d", l.Kind)
			}
		case KeyLength:
			if !direct {
				return invalid(path, "key-sourced length is only valid on a struct field")
			}
		default:
			return invalid(path, "missing array length")
		}
		if c.openEnded(t.Elem, nil) {
			return invalid(path+"[]", "array element may not hold a remaining-length array")
		}
		return c.field(path+"[]", t.Elem, false, false)
	case Option:
		return c.field(path+"?", t.Inner, false, tail)
	case Custom:
		return c.custom(path, t.Type, direct, tail)
	case Shared:
		ct, ok := c.p.Shared[t.Name]
		if !ok {
			return invalid(path, "unknown shared type %q", t.Name)
		}
		if !direct && keySelectedEnum(ct) != nil {
			return invalid(path, "shared enum %q selects on a key field and must be a struct field", t.Name)
		}
	case Key:
		return invalid(path, "key type is only valid as a struct field")
	case Constant:
		return invalid(path, "constant is only valid as a struct field")
	default:
		return invalid(path, "unsupported field type %T", t)
	}
	return nil
}

func (c checker) enum(path string, t *Enum, keyed, tail bool) error {
	var kind LiteralKind
	var selType FieldType
	switch s := t.Selector.(type) {
	case PrefixedSelector:
		k, ok := LiteralKindOf(s.Type)
		if !ok {
			return invalid(path, "selector must be an integer, bool or string, got %T", s.Type)
		}
		if err := c.field(path+".selector", s.Type, false, false); err != nil {
			return err
		}
		kind, selType = k, s.Type
	case KeySelector:
		if !keyed {
			return invalid(path, "enum selects on key %q but is not a struct field", s.Field)
		}
		if s.Field == "" {
			return invalid(path, "key selector without a field name")
		}
	default:
		return invalid(path, "missing selector")
	}
	if len(t.Variants) == 0 {
		return invalid(path, "enum has no variants")
	}
	seen := make(map[Literal]bool, len(t.Variants))
	for _, v := range t.Variants {
		vpath := path + "[" + v.Key.String() + "]"
		if seen[v.Key] {
			return invalid(vpath, "duplicate variant key")
		}
		seen[v.Key] = true
		if selType != nil {
			if err := checkLiteral(vpath, v.Key, selType, kind); err != nil {
				return err
			}
		}
		if err := c.custom(vpath, v.Type, false, tail); err != nil {
			return err
		}
	}
	return nil
}

// openEnded reports whether t may contain a remaining-length array, which
// consumes every byte after it.
func (c checker) openEnded(t FieldType, visiting map[string]bool) bool {
	switch t := t.(type) {
	case Array:
		if _, rest := t.Length.(RemainingLength); rest {
			return true
		}
		return c.openEnded(t.Elem, visiting)
	case Option:
		return c.openEnded(t.Inner, visiting)
	case Custom:
		return c.openEndedCustom(t.Type, visiting)
	case Shared:
		if visiting[t.Name] {
			return false
		}
		if visiting == nil {
			visiting = make(map[string]bool)
		}
		visiting[t.Name] = true
		return c.openEndedCustom(c.p.Shared[t.Name], visiting)
	}
	return false
}

func (c checker) openEndedCustom(t CustomType, visiting map[string]bool) bool {
	switch t := t.(type) {
	case *Struct:
		for _, f := range t.Fields {
			if c.openEnded(f.Type, visiting) {
				return true
			}
		}
	case *Enum:
		for _, v := range t.Variants {
			if c.openEndedCustom(v.Type, visiting) {
				return true
			}
		}
	}
	return false
}

func checkLiteral(path string, l Literal, t FieldType, kind LiteralKind) error {
	if l.Kind != kind {
		return invalid(path, "variant key %s is a %s, selector is a %s", l, l.Kind, kind)
	}
	if it, ok := t.(Integer); ok && !it.Kind.Fits(l.Int) {
		return invalid(path, "variant key %d does not fit %s", l.Int, it.Kind)
	}
	return nil
}

func (c checker) bitField(path string, t *BitField) error {
	if !t.Slot.Valid() || t.Slot.Variable() {
		return invalid(path, "bit field slot must be a fixed-width integer, got %s", t.Slot)
	}
	if len(t.Fields) == 0 {
		return invalid(path, "bit field has no fields")
	}
	total := 0
	seen := make(map[string]bool, len(t.Fields))
	for _, b := range t.Fields {
		if b.Name == "" {
			return invalid(path, "bit field member without a name")
		}
		if seen[b.Name] {
			return invalid(path+"."+b.Name, "duplicate bit field member")
		}
		seen[b.Name] = true
		if b.Kind > BitSigned {
			return invalid(path+"."+b.Name, "unknown bit kind %d", b.Kind)
		}
		w := b.BitWidth()
		if w < 1 || w > 64 {
			return invalid(path+"."+b.Name, "width %d out of range", w)
		}
		total += w
	}
	if total > t.Slot.Bits() {
		return invalid(path, "members need %d bits, slot %s has %d", total, t.Slot, t.Slot.Bits())
	}
	return nil
}

func (c checker) bitFlags(path string, t *BitFlags) error {
	if !t.Slot.Valid() || t.Slot.Variable() {
		return invalid(path, "bit flags slot must be a fixed-width integer, got %s", t.Slot)
	}
	names := make(map[string]bool, len(t.Flags))
	values := make(map[uint64]bool, len(t.Flags))
	for _, f := range t.Flags {
		if f.Name == "" {
			return invalid(path, "flag without a name")
		}
		if names[f.Name] {
			return invalid(path+"."+f.Name, "duplicate flag name")
		}
		names[f.Name] = true
		if f.Value == 0 || f.Value&(f.Value-1) != 0 {
			return invalid(path+"."+f.Name, "flag value 0x%X is not a single bit", f.Value)
		}
		if t.Slot.Bits() < 64 && f.Value >= 1<<uint(t.Slot.Bits()) {
			return invalid(path+"."+f.Name, "flag value 0x%X exceeds slot %s", f.Value, t.Slot)
		}
		if values[f.Value] {
			return invalid(path+"."+f.Name, "duplicate flag value 0x%X", f.Value)
		}
		values[f.Value] = true
	}
	return nil
}
