package packet

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/danmuck/protoforge/internal/protocol/schema"
	"github.com/danmuck/protoforge/internal/protocol/wire"
)

// MaxArrayLength caps the element count of any single array.
const MaxArrayLength = 1 << 21

// scope holds the Key fields decoded so far in one struct.
type scope struct {
	keys map[string]schema.Literal
}

func (s *scope) set(name string, l schema.Literal) {
	if s.keys == nil {
		s.keys = make(map[string]schema.Literal, 2)
	}
	s.keys[name] = l
}

func (s *scope) key(name string) (schema.Literal, bool) {
	if s == nil {
		return schema.Literal{}, false
	}
	l, ok := s.keys[name]
	return l, ok
}

func missingKey(name string) error {
	return fmt.Errorf("%w: key field %q was not decoded", wire.ErrMalformed, name)
}

// codec is one compiled node. decode receives the scope of the enclosing
// struct so key consumers can find their sibling Key values.
type codec interface {
	decode(r *wire.Reader, sc *scope) (Value, error)
	encode(w *wire.Writer, v Value) error
}

// keyDeriver is implemented by codecs that consume a sibling Key field. It
// recomputes the key value from the consumer's own value.
type keyDeriver interface {
	keyOf(v Value) (schema.Literal, error)
}

type integerCodec struct {
	kind schema.IntegerKind
}

func (c integerCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	switch c.kind {
	case schema.U8:
		return r.ReadUint8()
	case schema.I8:
		return r.ReadInt8()
	case schema.U16:
		return r.ReadUint16()
	case schema.I16:
		return r.ReadInt16()
	case schema.U32:
		return r.ReadUint32()
	case schema.I32:
		return r.ReadInt32()
	case schema.U64:
		return r.ReadUint64()
	case schema.I64:
		return r.ReadInt64()
	case schema.VarInt:
		return r.ReadVarInt()
	default:
		return r.ReadVarLong()
	}
}

func (c integerCodec) encode(w *wire.Writer, v Value) error {
	if u, ok := v.(uint64); ok && c.kind == schema.U64 {
		w.WriteUint64(u)
		return nil
	}
	n, ok := toInt64(v)
	if !ok {
		if _, big := v.(uint64); big {
			return fmt.Errorf("%w: %v does not fit %s", wire.ErrValueTooLarge, v, c.kind)
		}
		return typeErr(c.kind.String(), v)
	}
	if !c.kind.Fits(n) {
		return fmt.Errorf("%w: %d does not fit %s", wire.ErrValueTooLarge, n, c.kind)
	}
	switch c.kind {
	case schema.U8:
		w.WriteUint8(uint8(n))
	case schema.I8:
		w.WriteInt8(int8(n))
	case schema.U16:
		w.WriteUint16(uint16(n))
	case schema.I16:
		w.WriteInt16(int16(n))
	case schema.U32:
		w.WriteUint32(uint32(n))
	case schema.I32:
		w.WriteInt32(int32(n))
	case schema.U64:
		w.WriteUint64(uint64(n))
	case schema.I64:
		w.WriteInt64(n)
	case schema.VarInt:
		w.WriteVarInt(int32(n))
	default:
		w.WriteVarLong(n)
	}
	return nil
}

// count decodes a collection length.
func (c integerCodec) count(r *wire.Reader) (int64, error) {
	v, err := c.decode(r, nil)
	if err != nil {
		return 0, err
	}
	if u, ok := v.(uint64); ok {
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: length %d", wire.ErrValueTooLarge, u)
		}
		return int64(u), nil
	}
	n, _ := toInt64(v)
	return n, nil
}

type floatCodec struct {
	kind schema.FloatKind
}

func (c floatCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	if c.kind == schema.F32 {
		return r.ReadFloat32()
	}
	return r.ReadFloat64()
}

func (c floatCodec) encode(w *wire.Writer, v Value) error {
	var f float64
	switch v := v.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return typeErr(c.kind.String(), v)
	}
	if c.kind == schema.F32 {
		w.WriteFloat32(float32(f))
		return nil
	}
	w.WriteFloat64(f)
	return nil
}

type boolCodec struct{}

func (boolCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	return r.ReadBool()
}

func (boolCodec) encode(w *wire.Writer, v Value) error {
	b, ok := v.(bool)
	if !ok {
		return typeErr("bool", v)
	}
	w.WriteBool(b)
	return nil
}

type uuidCodec struct{}

func (uuidCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	return r.ReadUUID()
}

func (uuidCodec) encode(w *wire.Writer, v Value) error {
	id, ok := v.(uuid.UUID)
	if !ok {
		return typeErr("uuid.UUID", v)
	}
	w.WriteUUID(id)
	return nil
}

type stringCodec struct {
	max int
}

func (c stringCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	return r.ReadString(c.max)
}

func (c stringCodec) encode(w *wire.Writer, v Value) error {
	s, ok := v.(string)
	if !ok {
		return typeErr("string", v)
	}
	return w.WriteString(s, c.max)
}

type nbtCodec struct{}

func (nbtCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	return r.ReadNBT()
}

func (nbtCodec) encode(w *wire.Writer, v Value) error {
	switch v := v.(type) {
	case wire.NBT:
		return w.WriteNBT(v)
	case []byte:
		return w.WriteNBT(v)
	case nil:
		return w.WriteNBT(nil)
	default:
		return typeErr("wire.NBT", v)
	}
}

type optionCodec struct {
	inner codec
}

func (c optionCodec) decode(r *wire.Reader, sc *scope) (Value, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	return c.inner.decode(r, sc)
}

func (c optionCodec) encode(w *wire.Writer, v Value) error {
	if v == nil {
		w.WriteBool(false)
		return nil
	}
	w.WriteBool(true)
	return c.inner.encode(w, v)
}

type arrayCodec struct {
	length  schema.ArrayLength
	prefix  integerCodec
	elem    codec
	elemMin int
}

func index(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

func (c *arrayCodec) decode(r *wire.Reader, sc *scope) (Value, error) {
	var n int64
	switch l := c.length.(type) {
	case schema.RemainingLength:
		out := make([]any, 0)
		for i := 0; r.Len() > 0; i++ {
			if i >= MaxArrayLength {
				return nil, fmt.Errorf("%w: more than %d elements", wire.ErrValueTooLarge, MaxArrayLength)
			}
			v, err := c.elem.decode(r, nil)
			if err != nil {
				return nil, at(index(i), err)
			}
			out = append(out, v)
		}
		return out, nil
	case schema.FixedLength:
		n = int64(l.N)
	case schema.PrefixedLength:
		count, err := c.prefix.count(r)
		if err != nil {
			return nil, err
		}
		n = count
	case schema.KeyLength:
		lit, ok := sc.key(l.Field)
		if !ok {
			return nil, missingKey(l.Field)
		}
		n = lit.Int
	}
	if err := c.checkCount(n, r.Len()); err != nil {
		return nil, err
	}
	out := make([]any, 0, int(n))
	for i := 0; i < int(n); i++ {
		v, err := c.elem.decode(r, nil)
		if err != nil {
			return nil, at(index(i), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// checkCount rejects counts that cannot be satisfied before allocating.
func (c *arrayCodec) checkCount(n int64, remaining int) error {
	switch {
	case n < 0:
		return fmt.Errorf("%w: negative array length %d", wire.ErrMalformed, n)
	case n > MaxArrayLength:
		return fmt.Errorf("%w: array length %d exceeds %d", wire.ErrValueTooLarge, n, MaxArrayLength)
	case c.elemMin > 0 && n > int64(remaining/c.elemMin):
		return fmt.Errorf("%w: array of %d elements cannot fit in %d bytes", wire.ErrMalformed, n, remaining)
	}
	return nil
}

func (c *arrayCodec) items(v Value) ([]any, error) {
	switch v := v.(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, typeErr("[]any", v)
	}
}

func (c *arrayCodec) encode(w *wire.Writer, v Value) error {
	items, err := c.items(v)
	if err != nil {
		return err
	}
	if len(items) > MaxArrayLength {
		return fmt.Errorf("%w: array length %d exceeds %d", wire.ErrValueTooLarge, len(items), MaxArrayLength)
	}
	switch l := c.length.(type) {
	case schema.FixedLength:
		if len(items) != l.N {
			return fmt.Errorf("%w: have %d elements, want %d", ErrLengthMismatch, len(items), l.N)
		}
	case schema.PrefixedLength:
		if err := c.prefix.encode(w, len(items)); err != nil {
			return err
		}
	}
	for i, item := range items {
		if err := c.elem.encode(w, item); err != nil {
			return at(index(i), err)
		}
	}
	return nil
}

func (c *arrayCodec) keyOf(v Value) (schema.Literal, error) {
	items, err := c.items(v)
	if err != nil {
		return schema.Literal{}, err
	}
	return schema.IntLiteral(int64(len(items))), nil
}

type fieldRole uint8

const (
	roleValue fieldRole = iota
	roleKey
	roleConstant
)

type structField struct {
	name     string
	role     fieldRole
	codec    codec
	consumer int
}

type structCodec struct {
	name   string
	fields []structField
}

func (c *structCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	sc := &scope{}
	out := make(Struct, len(c.fields))
	for _, f := range c.fields {
		switch f.role {
		case roleConstant:
			continue
		case roleKey:
			v, err := f.codec.decode(r, sc)
			if err != nil {
				return nil, at(f.name, err)
			}
			lit, _ := literalOf(v)
			sc.set(f.name, lit)
		default:
			v, err := f.codec.decode(r, sc)
			if err != nil {
				return nil, at(f.name, err)
			}
			out[f.name] = v
		}
	}
	return out, nil
}

func (c *structCodec) encode(w *wire.Writer, v Value) error {
	s, ok := asStruct(v)
	if !ok && v != nil {
		return typeErr("packet.Struct", v)
	}
	for _, f := range c.fields {
		switch f.role {
		case roleConstant:
			continue
		case roleKey:
			consumer := c.fields[f.consumer]
			lit, err := consumer.codec.(keyDeriver).keyOf(s[consumer.name])
			if err != nil {
				return at(consumer.name, err)
			}
			if err := f.codec.encode(w, lit.Any()); err != nil {
				return at(f.name, err)
			}
		default:
			fv, present := s[f.name]
			if !present {
				if _, optional := f.codec.(optionCodec); !optional {
					return at(f.name, ErrMissingField)
				}
			}
			if err := f.codec.encode(w, fv); err != nil {
				return at(f.name, err)
			}
		}
	}
	return nil
}

type enumVariant struct {
	key   schema.Literal
	name  string
	codec codec
}

type enumCodec struct {
	name      string
	selector  codec
	keyField  string
	variants  []enumVariant
	byKey     map[schema.Literal]int
	byName    map[string]int
	ambiguous map[string]bool
}

func (c *enumCodec) decode(r *wire.Reader, sc *scope) (Value, error) {
	var key schema.Literal
	if c.selector != nil {
		v, err := c.selector.decode(r, sc)
		if err != nil {
			return nil, err
		}
		key, _ = literalOf(v)
	} else {
		lit, ok := sc.key(c.keyField)
		if !ok {
			return nil, missingKey(c.keyField)
		}
		key = lit
	}
	i, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s has no variant %s", wire.ErrMalformed, ErrNoVariant, c.name, key)
	}
	variant := c.variants[i]
	v, err := variant.codec.decode(r, nil)
	if err != nil {
		return nil, at(variant.name, err)
	}
	return Variant{Key: key, Name: variant.name, Value: v}, nil
}

func (c *enumCodec) pick(v Value) (int, Variant, error) {
	vv, ok := asVariant(v)
	if !ok {
		return 0, Variant{}, typeErr("packet.Variant", v)
	}
	if vv.Name != "" && !c.ambiguous[vv.Name] {
		i, ok := c.byName[vv.Name]
		if !ok {
			return 0, vv, fmt.Errorf("%w: %s has no variant named %q", ErrNoVariant, c.name, vv.Name)
		}
		return i, vv, nil
	}
	i, ok := c.byKey[vv.Key]
	if !ok {
		return 0, vv, fmt.Errorf("%w: %s has no variant %s", ErrNoVariant, c.name, vv.Key)
	}
	return i, vv, nil
}

func (c *enumCodec) encode(w *wire.Writer, v Value) error {
	i, vv, err := c.pick(v)
	if err != nil {
		return err
	}
	variant := c.variants[i]
	if c.selector != nil {
		if err := c.selector.encode(w, variant.key.Any()); err != nil {
			return err
		}
	}
	if err := variant.codec.encode(w, vv.Value); err != nil {
		return at(variant.name, err)
	}
	return nil
}

func (c *enumCodec) keyOf(v Value) (schema.Literal, error) {
	i, _, err := c.pick(v)
	if err != nil {
		return schema.Literal{}, err
	}
	return c.variants[i].key, nil
}

func readSlot(r *wire.Reader, kind schema.IntegerKind) (uint64, error) {
	switch kind.Bits() {
	case 8:
		v, err := r.ReadUint8()
		return uint64(v), err
	case 16:
		v, err := r.ReadUint16()
		return uint64(v), err
	case 32:
		v, err := r.ReadUint32()
		return uint64(v), err
	default:
		return r.ReadUint64()
	}
}

func writeSlot(w *wire.Writer, kind schema.IntegerKind, v uint64) {
	switch kind.Bits() {
	case 8:
		w.WriteUint8(uint8(v))
	case 16:
		w.WriteUint16(uint16(v))
	case 32:
		w.WriteUint32(uint32(v))
	default:
		w.WriteUint64(v)
	}
}

func mask(width int) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}
	return 1<<uint(width) - 1
}

type bitMember struct {
	name  string
	kind  schema.BitKind
	width int
	shift int
}

// bitFieldCodec packs members from the most significant slot bit downward.
type bitFieldCodec struct {
	slot    schema.IntegerKind
	members []bitMember
}

func (c *bitFieldCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	raw, err := readSlot(r, c.slot)
	if err != nil {
		return nil, err
	}
	out := make(Bits, len(c.members))
	for _, m := range c.members {
		x := (raw >> uint(m.shift)) & mask(m.width)
		if m.kind == schema.BitSigned && m.width < 64 && x&(1<<uint(m.width-1)) != 0 {
			x |= ^mask(m.width)
		}
		out[m.name] = int64(x)
	}
	return out, nil
}

func (c *bitFieldCodec) encode(w *wire.Writer, v Value) error {
	var bits Bits
	switch v := v.(type) {
	case Bits:
		bits = v
	case map[string]int64:
		bits = v
	default:
		return typeErr("packet.Bits", v)
	}
	var raw uint64
	for _, m := range c.members {
		x, ok := bits[m.name]
		if !ok {
			return at(m.name, ErrMissingField)
		}
		if !m.fits(x) {
			return at(m.name, fmt.Errorf("%w: %d does not fit %d %s bits", wire.ErrValueTooLarge, x, m.width, m.kind))
		}
		raw |= (uint64(x) & mask(m.width)) << uint(m.shift)
	}
	writeSlot(w, c.slot, raw)
	return nil
}

func (m bitMember) fits(x int64) bool {
	switch {
	case m.kind == schema.BitBool:
		return x == 0 || x == 1
	case m.width >= 64:
		return m.kind == schema.BitSigned || x >= 0
	case m.kind == schema.BitSigned:
		limit := int64(1) << uint(m.width-1)
		return x >= -limit && x < limit
	default:
		return x >= 0 && uint64(x) <= mask(m.width)
	}
}

type flagBit struct {
	name  string
	value uint64
}

type bitFlagsCodec struct {
	slot  schema.IntegerKind
	flags []flagBit
	known uint64
}

func newBitFlagsCodec(t *schema.BitFlags) *bitFlagsCodec {
	c := &bitFlagsCodec{slot: t.Slot}
	for _, f := range t.Flags {
		c.flags = append(c.flags, flagBit{name: f.Name, value: f.Value})
		c.known |= f.Value
	}
	slices.SortFunc(c.flags, func(a, b flagBit) int {
		switch {
		case a.value < b.value:
			return -1
		case a.value > b.value:
			return 1
		}
		return 0
	})
	return c
}

func (c *bitFlagsCodec) decode(r *wire.Reader, _ *scope) (Value, error) {
	raw, err := readSlot(r, c.slot)
	if err != nil {
		return nil, err
	}
	if extra := raw &^ c.known; extra != 0 {
		return nil, fmt.Errorf("%w: %w: bits 0x%X", wire.ErrMalformed, ErrUnknownFlag, extra)
	}
	out := make(Flags, 0, len(c.flags))
	for _, f := range c.flags {
		if raw&f.value != 0 {
			out = append(out, f.name)
		}
	}
	return out, nil
}

func (c *bitFlagsCodec) encode(w *wire.Writer, v Value) error {
	var names []string
	switch v := v.(type) {
	case Flags:
		names = v
	case []string:
		names = v
	case nil:
	default:
		return typeErr("packet.Flags", v)
	}
	var raw uint64
	for _, name := range names {
		i := slices.IndexFunc(c.flags, func(f flagBit) bool { return f.name == name })
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownFlag, name)
		}
		raw |= c.flags[i].value
	}
	writeSlot(w, c.slot, raw)
	return nil
}

type unitCodec struct{}

func (unitCodec) decode(*wire.Reader, *scope) (Value, error) { return Unit{}, nil }

func (unitCodec) encode(*wire.Writer, Value) error { return nil }

// sharedRef is the single node every reference to one shared type resolves
// to. target is set once compilation of the shared type finishes, which lets
// recursive shared types refer to themselves.
type sharedRef struct {
	name   string
	target codec
}

func (s *sharedRef) decode(r *wire.Reader, sc *scope) (Value, error) {
	return s.target.decode(r, sc)
}

func (s *sharedRef) encode(w *wire.Writer, v Value) error {
	return s.target.encode(w, v)
}

func (s *sharedRef) keyOf(v Value) (schema.Literal, error) {
	kd, ok := s.target.(keyDeriver)
	if !ok {
		return schema.Literal{}, fmt.Errorf("packet: shared type %s does not consume a key", s.name)
	}
	return kd.keyOf(v)
}
