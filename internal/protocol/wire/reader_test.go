package wire

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	testlog.Start(t)
	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	w := NewWriter(nil)
	w.WriteUint8(200)
	w.WriteInt8(-5)
	w.WriteUint16(65000)
	w.WriteInt16(-300)
	w.WriteUint32(4000000000)
	w.WriteInt32(-70000)
	w.WriteUint64(math.MaxUint64)
	w.WriteInt64(math.MinInt64)
	w.WriteFloat32(1.5)
	w.WriteFloat64(-2.25)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteVarInt(25565)
	w.WriteVarLong(-2)
	w.WriteUUID(id)
	if err := w.WriteString("héllo", 16); err != nil {
		t.Fatalf("write string: %v", err)
	}

	r := NewReader(w.Bytes())
	u8, _ := r.ReadUint8()
	i8, _ := r.ReadInt8()
	u16, _ := r.ReadUint16()
	i16, _ := r.ReadInt16()
	u32, _ := r.ReadUint32()
	i32, _ := r.ReadInt32()
	u64, _ := r.ReadUint64()
	i64, _ := r.ReadInt64()
	f32, _ := r.ReadFloat32()
	f64, _ := r.ReadFloat64()
	b1, _ := r.ReadBool()
	b2, _ := r.ReadBool()
	vi, _ := r.ReadVarInt()
	vl, _ := r.ReadVarLong()
	gotID, _ := r.ReadUUID()
	s, err := r.ReadString(16)
	if err != nil {
		t.Fatalf("read string: %v", err)
	}
	if u8 != 200 || i8 != -5 || u16 != 65000 || i16 != -300 || u32 != 4000000000 || i32 != -70000 {
		t.Fatalf("fixed ints mismatch: %d %d %d %d %d %d", u8, i8, u16, i16, u32, i32)
	}
	if u64 != math.MaxUint64 || i64 != math.MinInt64 || f32 != 1.5 || f64 != -2.25 {
		t.Fatalf("wide values mismatch: %d %d %v %v", u64, i64, f32, f64)
	}
	if !b1 || b2 || vi != 25565 || vl != -2 || gotID != id || s != "héllo" {
		t.Fatalf("tail mismatch: %v %v %d %d %s %q", b1, b2, vi, vl, gotID, s)
	}
	if r.Len() != 0 {
		t.Fatalf("expected reader exhausted, %d bytes left", r.Len())
	}
}

func TestReadBoolRejectsOtherBytes(t *testing.T) {
	testlog.Start(t)
	_, err := NewReader([]byte{2}).ReadBool()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestReadStringLimits(t *testing.T) {
	testlog.Start(t)
	w := NewWriter(nil)
	if err := w.WriteString("abcdef", 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewReader(w.Bytes()).ReadString(5); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge for 6 chars over max 5, got %v", err)
	}
	if s, err := NewReader(w.Bytes()).ReadString(6); err != nil || s != "abcdef" {
		t.Fatalf("expected exact max to pass, got %q %v", s, err)
	}
	if err := NewWriter(nil).WriteString(strings.Repeat("x", 4), 3); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected writer to enforce max, got %v", err)
	}

	huge := AppendVarInt(nil, 1<<20)
	if _, err := NewReader(huge).ReadString(10); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected declared byte length to be rejected before reading, got %v", err)
	}
}

func TestReadStringInvalidUTF8IsMalformed(t *testing.T) {
	testlog.Start(t)
	in := []byte{2, 0xc3, 0x28}
	if _, err := NewReader(in).ReadString(0); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestShortReadsReportNotEnoughBytes(t *testing.T) {
	testlog.Start(t)
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrNotEnoughBytes) {
		t.Fatalf("expected ErrNotEnoughBytes, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read must not consume, offset=%d", r.Offset())
	}
	if _, err := r.ReadUUID(); !errors.Is(err, ErrNotEnoughBytes) {
		t.Fatalf("expected ErrNotEnoughBytes, got %v", err)
	}
	if _, err := NewReader([]byte{5, 'a'}).ReadString(0); !errors.Is(err, ErrNotEnoughBytes) {
		t.Fatalf("expected ErrNotEnoughBytes, got %v", err)
	}
}
