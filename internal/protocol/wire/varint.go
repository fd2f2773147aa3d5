package wire

import "fmt"

const (
	MaxVarIntLen  = 5
	MaxVarLongLen = 10
)

// VarIntLen reports how many bytes AppendVarInt writes for v.
func VarIntLen(v int32) int {
	ux := uint32(v)
	n := 1
	for ux >= 0x80 {
		ux >>= 7
		n++
	}
	return n
}

func AppendVarInt(dst []byte, v int32) []byte {
	ux := uint32(v)
	for ux >= 0x80 {
		dst = append(dst, byte(ux)|0x80)
		ux >>= 7
	}
	return append(dst, byte(ux))
}

// DecodeVarInt reads a VarInt from the front of buf and returns the value
// and the number of bytes consumed. A buffer that ends mid-value yields
// ErrNotEnoughBytes; a continuation bit on the fifth byte yields ErrMalformed.
func DecodeVarInt(buf []byte) (int32, int, error) {
	var ux uint32
	for i := 0; i < MaxVarIntLen; i++ {
		if i >= len(buf) {
			return 0, 0, ErrNotEnoughBytes
		}
		b := buf[i]
		ux |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(ux), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: varint longer than %d bytes", ErrMalformed, MaxVarIntLen)
}

func VarLongLen(v int64) int {
	ux := uint64(v)
	n := 1
	for ux >= 0x80 {
		ux >>= 7
		n++
	}
	return n
}

func AppendVarLong(dst []byte, v int64) []byte {
	ux := uint64(v)
	for ux >= 0x80 {
		dst = append(dst, byte(ux)|0x80)
		ux >>= 7
	}
	return append(dst, byte(ux))
}

func DecodeVarLong(buf []byte) (int64, int, error) {
	var ux uint64
	for i := 0; i < MaxVarLongLen; i++ {
		if i >= len(buf) {
			return 0, 0, ErrNotEnoughBytes
		}
		b := buf[i]
		ux |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int64(ux), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: varlong longer than %d bytes", ErrMalformed, MaxVarLongLen)
}
