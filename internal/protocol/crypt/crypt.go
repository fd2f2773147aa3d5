// Package crypt provides the AES/CFB8 stream cipher used once a connection
// has negotiated a shared secret. The secret is both the key and the IV.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const SecretSize = 16

// NewEncrypter returns the outbound stream for a shared secret.
func NewEncrypter(secret []byte) (cipher.Stream, error) {
	block, err := newBlock(secret)
	if err != nil {
		return nil, err
	}
	return NewCFB8(block, secret, false), nil
}

// NewDecrypter returns the inbound stream for a shared secret.
func NewDecrypter(secret []byte) (cipher.Stream, error) {
	block, err := newBlock(secret)
	if err != nil {
		return nil, err
	}
	return NewCFB8(block, secret, true), nil
}

func newBlock(secret []byte) (cipher.Block, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("crypt: shared secret must be %d bytes, got %d", SecretSize, len(secret))
	}
	return aes.NewCipher(secret)
}

type cfb8 struct {
	block   cipher.Block
	reg     []byte
	out     []byte
	decrypt bool
}

// NewCFB8 returns a CFB mode stream with an 8-bit segment size. iv must be
// one block long.
func NewCFB8(block cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	size := block.BlockSize()
	if len(iv) != size {
		panic("crypt: iv length must equal block size")
	}
	reg := make([]byte, size)
	copy(reg, iv)
	return &cfb8{block: block, reg: reg, out: make([]byte, size), decrypt: decrypt}
}

func (x *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("crypt: output smaller than input")
	}
	last := len(x.reg) - 1
	for i, in := range src {
		x.block.Encrypt(x.out, x.reg)
		v := in ^ x.out[0]
		copy(x.reg, x.reg[1:])
		if x.decrypt {
			x.reg[last] = in
		} else {
			x.reg[last] = v
		}
		dst[i] = v
	}
}
