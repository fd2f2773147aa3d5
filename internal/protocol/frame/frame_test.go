package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/protoforge/internal/protocol/wire"
	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

func TestAppendNextRoundTrip(t *testing.T) {
	testlog.Start(t)
	payloads := [][]byte{
		{},
		{0x00},
		bytes.Repeat([]byte{0xab}, 127),
		bytes.Repeat([]byte{0xcd}, 128),
		bytes.Repeat([]byte{0xef}, 40000),
	}
	var stream []byte
	for _, p := range payloads {
		var err error
		stream, err = Append(stream, p, 0)
		if err != nil {
			t.Fatalf("append len=%d: %v", len(p), err)
		}
	}

	frames, n, err := Split(stream, 0)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if n != len(stream) {
		t.Fatalf("consumed=%d want=%d", n, len(stream))
	}
	if len(frames) != len(payloads) {
		t.Fatalf("frames=%d want=%d", len(frames), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(frames[i], payloads[i]) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
}

func TestDelimiterChunkingInvariance(t *testing.T) {
	testlog.Start(t)
	var stream []byte
	for i := 0; i < 20; i++ {
		stream, _ = Append(stream, bytes.Repeat([]byte{byte(i)}, i*17), 0)
	}
	want, _, err := Split(stream, 0)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	for _, chunk := range []int{1, 2, 3, 7, 64, len(stream)} {
		d := NewDelimiter(0)
		var pending []byte
		var got [][]byte
		for off := 0; off < len(stream); off += chunk {
			end := min(off+chunk, len(stream))
			pending = append(pending, stream[off:end]...)
			for {
				f, n, err := d.Next(pending)
				if err != nil {
					t.Fatalf("chunk=%d: %v", chunk, err)
				}
				pending = pending[n:]
				if f == nil {
					break
				}
				got = append(got, append([]byte(nil), f...))
			}
		}
		if len(pending) != 0 || d.State() != AwaitingLength {
			t.Fatalf("chunk=%d: leftover=%d state=%s", chunk, len(pending), d.State())
		}
		if len(got) != len(want) {
			t.Fatalf("chunk=%d: frames=%d want=%d", chunk, len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("chunk=%d: frame %d mismatch", chunk, i)
			}
		}
	}
}

func TestDelimiterConsumesPrefixBeforeBody(t *testing.T) {
	testlog.Start(t)
	d := NewDelimiter(0)
	f, n, err := d.Next([]byte{0x03, 0x01})
	if err != nil || f != nil {
		t.Fatalf("unexpected frame=%v err=%v", f, err)
	}
	if n != 1 || d.State() != AwaitingBody || d.Pending() != 3 {
		t.Fatalf("consumed=%d state=%s pending=%d", n, d.State(), d.Pending())
	}
	f, n, err = d.Next([]byte{0x01, 0x02, 0x03, 0x09})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if n != 3 || !bytes.Equal(f, []byte{1, 2, 3}) {
		t.Fatalf("frame=%v consumed=%d", f, n)
	}
}

func TestDelimiterRejectsOversizedFrame(t *testing.T) {
	testlog.Start(t)
	d := NewDelimiter(16)
	_, _, err := d.Next(wire.AppendVarInt(nil, 17))
	if !errors.Is(err, ErrFrameTooLarge) || !errors.Is(err, wire.ErrValueTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, err := Append(nil, make([]byte, 17), 16); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected append ErrFrameTooLarge, got %v", err)
	}
}

func TestDelimiterRejectsBadPrefix(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		in   []byte
	}{
		{name: "negative", in: wire.AppendVarInt(nil, -1)},
		{name: "overlong", in: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}},
	}
	for _, tc := range cases {
		d := NewDelimiter(0)
		if _, _, err := d.Next(tc.in); !errors.Is(err, wire.ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", tc.name, err)
		}
	}
}

func TestDelimiterWaitsOnPartialPrefix(t *testing.T) {
	testlog.Start(t)
	d := NewDelimiter(0)
	f, n, err := d.Next([]byte{0x80, 0x80})
	if f != nil || n != 0 || err != nil {
		t.Fatalf("frame=%v consumed=%d err=%v", f, n, err)
	}
	if d.State() != AwaitingLength {
		t.Fatalf("state=%s", d.State())
	}
}
