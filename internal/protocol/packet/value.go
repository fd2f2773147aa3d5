package packet

import (
	"math"

	"github.com/danmuck/protoforge/internal/protocol/schema"
)

// Value is any decoded schema value.
type Value = any

// Struct holds the stored fields of a decoded struct by name.
type Struct map[string]Value

// Variant is a decoded enum value. Encoders select the variant by Name when
// it is set and by Key otherwise.
type Variant struct {
	Key   schema.Literal
	Name  string
	Value Value
}

// Bits holds bit field members by name.
type Bits map[string]int64

// Flags lists the active flag names.
type Flags []string

// Has reports whether name is active.
func (f Flags) Has(name string) bool {
	for _, n := range f {
		if n == name {
			return true
		}
	}
	return false
}

type Unit struct{}

// toInt64 converts any Go integer to int64. Values of uint64 above MaxInt64
// are reported as not ok.
func toInt64(v Value) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

// literalOf converts a decoded selector or key value into a Literal.
func literalOf(v Value) (schema.Literal, bool) {
	switch v := v.(type) {
	case bool:
		return schema.BoolLiteral(v), true
	case string:
		return schema.StringLiteral(v), true
	case uint64:
		return schema.IntLiteral(int64(v)), true
	}
	if n, ok := toInt64(v); ok {
		return schema.IntLiteral(n), true
	}
	return schema.Literal{}, false
}

func asStruct(v Value) (Struct, bool) {
	switch v := v.(type) {
	case Struct:
		return v, true
	case map[string]any:
		return Struct(v), true
	default:
		return nil, false
	}
}

func asVariant(v Value) (Variant, bool) {
	switch v := v.(type) {
	case Variant:
		return v, true
	case *Variant:
		if v == nil {
			return Variant{}, false
		}
		return *v, true
	default:
		return Variant{}, false
	}
}
