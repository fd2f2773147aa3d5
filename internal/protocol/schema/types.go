package schema

import (
	"fmt"
	"math"
	"strconv"
)

// CustomType is a named payload type. The set of implementations is closed:
// *Struct, *Enum, *BitField, *BitFlags and *Unit.
type CustomType interface {
	TypeName() string
	customType()
}

// FieldType is the type of one struct field or array element. The set of
// implementations is closed and listed in this file.
type FieldType interface {
	fieldType()
}

type Field struct {
	Name string
	Type FieldType
}

// Struct fields are encoded in declaration order.
type Struct struct {
	Name   string
	Fields []Field
}

type Variant struct {
	Key  Literal
	Type CustomType
}

// Enum selects one variant by comparing the selector value with each
// variant key.
type Enum struct {
	Name     string
	Selector Selector
	Variants []Variant
}

// Variant returns the variant whose key equals key.
func (e *Enum) Variant(key Literal) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Key == key {
			return v, true
		}
	}
	return Variant{}, false
}

type BitKind uint8

const (
	BitBool BitKind = iota
	BitUnsigned
	BitSigned
)

func (k BitKind) String() string {
	switch k {
	case BitBool:
		return "bool"
	case BitUnsigned:
		return "unsigned"
	case BitSigned:
		return "signed"
	default:
		return fmt.Sprintf("bitkind(%d)", uint8(k))
	}
}

// Bit is one named sub-field of a BitField. Bool bits are one bit wide.
type Bit struct {
	Name  string
	Kind  BitKind
	Width uint8
}

// BitWidth returns the number of slot bits the field occupies.
func (b Bit) BitWidth() int {
	if b.Kind == BitBool {
		return 1
	}
	return int(b.Width)
}

// BitField packs Fields into one Slot integer. The first field occupies the
// most significant bits; unused low bits are zero.
type BitField struct {
	Name   string
	Slot   IntegerKind
	Fields []Bit
}

type Flag struct {
	Name  string
	Value uint64
}

// BitFlags maps single bits of Slot to flag names.
type BitFlags struct {
	Name  string
	Slot  IntegerKind
	Flags []Flag
}

type Unit struct {
	Name string
}

func (t *Struct) TypeName() string   { return t.Name }
func (t *Enum) TypeName() string     { return t.Name }
func (t *BitField) TypeName() string { return t.Name }
func (t *BitFlags) TypeName() string { return t.Name }
func (t *Unit) TypeName() string     { return t.Name }

func (*Struct) customType()   {}
func (*Enum) customType()     {}
func (*BitField) customType() {}
func (*BitFlags) customType() {}
func (*Unit) customType()     {}

type IntegerKind uint8

const (
	U8 IntegerKind = iota
	I8
	U16
	I16
	U32
	I32
	U64
	I64
	VarInt
	VarLong
)

var integerNames = [...]string{"u8", "i8", "u16", "i16", "u32", "i32", "u64", "i64", "varint", "varlong"}

func (k IntegerKind) String() string {
	if int(k) < len(integerNames) {
		return integerNames[k]
	}
	return fmt.Sprintf("integer(%d)", uint8(k))
}

func ParseIntegerKind(raw string) (IntegerKind, bool) {
	for i, name := range integerNames {
		if name == raw {
			return IntegerKind(i), true
		}
	}
	return 0, false
}

func (k IntegerKind) Valid() bool { return k <= VarLong }

func (k IntegerKind) Variable() bool { return k == VarInt || k == VarLong }

func (k IntegerKind) Signed() bool {
	switch k {
	case I8, I16, I32, I64, VarInt, VarLong:
		return true
	}
	return false
}

// Bits is the value width in bits.
func (k IntegerKind) Bits() int {
	switch k {
	case U8, I8:
		return 8
	case U16, I16:
		return 16
	case U32, I32, VarInt:
		return 32
	default:
		return 64
	}
}

// MinSize is the smallest number of bytes an encoding of k occupies.
func (k IntegerKind) MinSize() int {
	if k.Variable() {
		return 1
	}
	return k.Bits() / 8
}

// Fits reports whether v is representable in k.
func (k IntegerKind) Fits(v int64) bool {
	switch k {
	case U8:
		return v >= 0 && v <= math.MaxUint8
	case I8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case U16:
		return v >= 0 && v <= math.MaxUint16
	case I16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case U32:
		return v >= 0 && v <= math.MaxUint32
	case I32, VarInt:
		return v >= math.MinInt32 && v <= math.MaxInt32
	case U64:
		return v >= 0
	default:
		return true
	}
}

type FloatKind uint8

const (
	F32 FloatKind = iota
	F64
)

func (k FloatKind) String() string {
	if k == F32 {
		return "f32"
	}
	return "f64"
}

type Integer struct{ Kind IntegerKind }

type Float struct{ Kind FloatKind }

type Bool struct{}

type UUID struct{}

// String holds at most Max characters; zero means the protocol default.
type String struct{ Max int }

type NBT struct{}

type Array struct {
	Length ArrayLength
	Elem   FieldType
}

// Option is a presence bool followed by Inner when true.
type Option struct{ Inner FieldType }

// Custom embeds a custom type definition inline.
type Custom struct{ Type CustomType }

// Constant occupies no bytes and is not part of the decoded value.
type Constant struct{ Value Literal }

// Key is read from the wire but not stored; its value is derived on encode
// from the sibling field that consumes it.
type Key struct{ Inner FieldType }

type Shared struct{ Name string }

func (Integer) fieldType()  {}
func (Float) fieldType()    {}
func (Bool) fieldType()     {}
func (UUID) fieldType()     {}
func (String) fieldType()   {}
func (NBT) fieldType()      {}
func (Array) fieldType()    {}
func (Option) fieldType()   {}
func (Custom) fieldType()   {}
func (Constant) fieldType() {}
func (Key) fieldType()      {}
func (Shared) fieldType()   {}

// Selector decides which enum variant follows.
type Selector interface {
	selector()
}

// PrefixedSelector reads a value of Type (integer, bool or string) in front
// of the variant payload.
type PrefixedSelector struct{ Type FieldType }

// KeySelector uses the already decoded Key field Field of the enclosing
// struct.
type KeySelector struct{ Field string }

func (PrefixedSelector) selector() {}
func (KeySelector) selector()      {}

type ArrayLength interface {
	arrayLength()
}

type RemainingLength struct{}

type FixedLength struct{ N int }

type PrefixedLength struct{ Kind IntegerKind }

type KeyLength struct{ Field string }

func (RemainingLength) arrayLength() {}
func (FixedLength) arrayLength()     {}
func (PrefixedLength) arrayLength()  {}
func (KeyLength) arrayLength()       {}

type LiteralKind uint8

const (
	LiteralInt LiteralKind = iota
	LiteralBool
	LiteralString
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralInt:
		return "int"
	case LiteralBool:
		return "bool"
	default:
		return "string"
	}
}

// Literal is a comparable tagged scalar used for enum keys, Key values and
// constants. Only the member selected by Kind is meaningful.
type Literal struct {
	Kind LiteralKind
	Int  int64
	Bool bool
	Str  string
}

func IntLiteral(v int64) Literal    { return Literal{Kind: LiteralInt, Int: v} }
func BoolLiteral(v bool) Literal     { return Literal{Kind: LiteralBool, Bool: v} }
func StringLiteral(v string) Literal { return Literal{Kind: LiteralString, Str: v} }

func (l Literal) String() string {
	switch l.Kind {
	case LiteralInt:
		return strconv.FormatInt(l.Int, 10)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	default:
		return strconv.Quote(l.Str)
	}
}

// Any returns the literal as a plain Go value.
func (l Literal) Any() any {
	switch l.Kind {
	case LiteralInt:
		return l.Int
	case LiteralBool:
		return l.Bool
	default:
		return l.Str
	}
}

// LiteralKindOf returns the literal kind a Key or selector of type t
// produces, and false if t cannot be used as one.
func LiteralKindOf(t FieldType) (LiteralKind, bool) {
	switch t.(type) {
	case Integer:
		return LiteralInt, true
	case Bool:
		return LiteralBool, true
	case String:
		return LiteralString, true
	default:
		return 0, false
	}
}
