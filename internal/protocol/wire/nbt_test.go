package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

// sampleCompound is {"root": {"hp": short 20, "tags": list<string>["a"], "ids": int[1,2]}}.
func sampleCompound() []byte {
	return []byte{
		tagCompound, 0x00, 0x04, 'r', 'o', 'o', 't',
		tagShort, 0x00, 0x02, 'h', 'p', 0x00, 0x14,
		tagList, 0x00, 0x04, 't', 'a', 'g', 's', tagString, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 'a',
		tagIntArray, 0x00, 0x03, 'i', 'd', 's', 0x00, 0x00, 0x00, 0x02, 0, 0, 0, 1, 0, 0, 0, 2,
		tagEnd,
	}
}

func TestReadNBTConsumesExactlyOneValue(t *testing.T) {
	testlog.Start(t)
	in := append(sampleCompound(), 0xAA)
	r := NewReader(in)
	v, err := r.ReadNBT()
	if err != nil {
		t.Fatalf("read nbt: %v", err)
	}
	if !bytes.Equal(v, sampleCompound()) {
		t.Fatalf("nbt bytes mismatch: %x", []byte(v))
	}
	if r.Len() != 1 {
		t.Fatalf("expected trailing byte untouched, left=%d", r.Len())
	}

	w := NewWriter(nil)
	if err := w.WriteNBT(v); err != nil {
		t.Fatalf("write nbt: %v", err)
	}
	if !bytes.Equal(w.Bytes(), sampleCompound()) {
		t.Fatalf("write mismatch")
	}
}

func TestEmptyNBT(t *testing.T) {
	testlog.Start(t)
	w := NewWriter(nil)
	if err := w.WriteNBT(nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := NewReader(w.Bytes()).ReadNBT()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !v.Empty() {
		t.Fatalf("expected empty nbt, got %x", []byte(v))
	}
}

func TestMalformedNBT(t *testing.T) {
	testlog.Start(t)
	full := sampleCompound()
	cases := map[string][]byte{
		"truncated":    full[:len(full)-1],
		"unknown tag":  {13, 0x00, 0x00},
		"negative len": {tagByteArray, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff},
		"end list":     {tagList, 0x00, 0x00, tagEnd, 0x00, 0x00, 0x00, 0x02},
	}
	for name, in := range cases {
		if _, err := NewReader(in).ReadNBT(); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
	if err := NewWriter(nil).WriteNBT(append(full, 0)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected trailing bytes rejected on write, got %v", err)
	}
}
