package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Writer appends primitive encodings to an internal buffer.
type Writer struct {
	buf []byte
}

func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Truncate discards everything written after the first n bytes.
func (w *Writer) Truncate(n int) {
	if n >= 0 && n < len(w.buf) {
		w.buf = w.buf[:n]
	}
}

func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteInt8(v int8) { w.buf = append(w.buf, byte(v)) }

func (w *Writer) WriteUint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }

func (w *Writer) WriteUint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

func (w *Writer) WriteUint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat32(v float32) { w.WriteUint32(math.Float32bits(v)) }

func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteVarInt(v int32) { w.buf = AppendVarInt(w.buf, v) }

func (w *Writer) WriteVarLong(v int64) { w.buf = AppendVarLong(w.buf, v) }

// WriteString enforces the same character limit ReadString applies so that
// an encoded packet is always decodable by a peer using the same schema.
func (w *Writer) WriteString(s string, max int) error {
	if max <= 0 {
		max = DefaultStringMax
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: string is not valid utf-8", ErrMalformed)
	}
	if chars := utf8.RuneCountInString(s); chars > max {
		return fmt.Errorf("%w: string of %d characters exceeds %d", ErrValueTooLarge, chars, max)
	}
	if len(s) > math.MaxInt32 {
		return fmt.Errorf("%w: string of %d bytes", ErrValueTooLarge, len(s))
	}
	w.WriteVarInt(int32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *Writer) WriteUUID(id uuid.UUID) { w.buf = append(w.buf, id[:]...) }

// WriteNBT writes a validated NBT value. A nil value is written as an empty
// (TAG_End) root.
func (w *Writer) WriteNBT(v NBT) error {
	if len(v) == 0 {
		w.buf = append(w.buf, tagEnd)
		return nil
	}
	n, err := scanNBT(v)
	if err != nil {
		return err
	}
	if n != len(v) {
		return fmt.Errorf("%w: %d trailing bytes after nbt value", ErrMalformed, len(v)-n)
	}
	w.buf = append(w.buf, v...)
	return nil
}
