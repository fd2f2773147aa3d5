package crypt

import (
	"bytes"
	"crypto/aes"
	"encoding/hex"
	"testing"

	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex %q: %v", s, err)
	}
	return b
}

// NIST SP 800-38A F.3.7 / F.3.8.
func TestCFB8KnownVector(t *testing.T) {
	testlog.Start(t)
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	iv := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	plain := mustHex(t, "6bc1bee22e409f96e93d7e117393172aae2d")
	want := mustHex(t, "3b79424c9c0dd436bace9e0ed4586a4f32b9")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	got := make([]byte, len(plain))
	NewCFB8(block, iv, false).XORKeyStream(got, plain)
	if !bytes.Equal(got, want) {
		t.Fatalf("encrypt got=%x want=%x", got, want)
	}
	back := make([]byte, len(got))
	NewCFB8(block, iv, true).XORKeyStream(back, got)
	if !bytes.Equal(back, plain) {
		t.Fatalf("decrypt got=%x want=%x", back, plain)
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	testlog.Start(t)
	secret := []byte("0123456789abcdef")
	plain := bytes.Repeat([]byte("stream cipher state carries across calls "), 10)

	enc, err := NewEncrypter(secret)
	if err != nil {
		t.Fatalf("encrypter: %v", err)
	}
	whole := make([]byte, len(plain))
	enc.XORKeyStream(whole, plain)

	for _, chunk := range []int{1, 3, 16, 17, 100} {
		enc, _ := NewEncrypter(secret)
		dec, _ := NewDecrypter(secret)
		buf := append([]byte(nil), plain...)
		for off := 0; off < len(buf); off += chunk {
			end := min(off+chunk, len(buf))
			enc.XORKeyStream(buf[off:end], buf[off:end])
		}
		if !bytes.Equal(buf, whole) {
			t.Fatalf("chunk=%d: ciphertext differs from one-shot", chunk)
		}
		for off := 0; off < len(buf); off += chunk {
			end := min(off+chunk, len(buf))
			dec.XORKeyStream(buf[off:end], buf[off:end])
		}
		if !bytes.Equal(buf, plain) {
			t.Fatalf("chunk=%d: round trip failed", chunk)
		}
	}
}

func TestSecretSize(t *testing.T) {
	testlog.Start(t)
	if _, err := NewEncrypter(make([]byte, 15)); err == nil {
		t.Fatalf("expected short secret error")
	}
	if _, err := NewDecrypter(make([]byte, 32)); err == nil {
		t.Fatalf("expected long secret error")
	}
}
