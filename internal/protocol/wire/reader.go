package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultStringMax is the character limit applied when a string field does
// not declare one.
const DefaultStringMax = 32767

// Reader decodes primitives from the front of an in-memory buffer.
// Slices returned by ReadBytes alias the underlying buffer.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.pos
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.pos
}

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte {
	return r.buf[r.pos:]
}

func (r *Reader) need(n int) error {
	if n < 0 || r.Len() < n {
		return ErrNotEnoughBytes
	}
	return nil
}

func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	return r.ReadByte()
}

func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBool accepts only 0x00 and 0x01.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool byte 0x%02x", ErrMalformed, b)
	}
}

func (r *Reader) ReadVarInt() (int32, error) {
	v, n, err := DecodeVarInt(r.Rest())
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

func (r *Reader) ReadVarLong() (int64, error) {
	v, n, err := DecodeVarLong(r.Rest())
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadString reads a VarInt byte length followed by UTF-8 text holding at
// most max characters. A max of zero selects DefaultStringMax.
func (r *Reader) ReadString(max int) (string, error) {
	if max <= 0 {
		max = DefaultStringMax
	}
	n, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length %d", ErrMalformed, n)
	}
	if int(n) > max*utf8.UTFMax {
		return "", fmt.Errorf("%w: string of %d bytes exceeds %d characters", ErrValueTooLarge, n, max)
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: string is not valid utf-8", ErrMalformed)
	}
	if chars := utf8.RuneCount(b); chars > max {
		return "", fmt.Errorf("%w: string of %d characters exceeds %d", ErrValueTooLarge, chars, max)
	}
	return string(b), nil
}

func (r *Reader) ReadUUID() (uuid.UUID, error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

// ReadNBT validates one network NBT value and returns a copy of its bytes.
func (r *Reader) ReadNBT() (NBT, error) {
	n, err := scanNBT(r.Rest())
	if err != nil {
		return nil, err
	}
	b, _ := r.ReadBytes(n)
	return append(NBT(nil), b...), nil
}
