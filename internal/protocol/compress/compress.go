// Package compress implements the threshold compression stage that sits
// between the frame delimiter and the packet codec.
//
// A compressed frame body starts with a VarInt holding the inflated size of
// the packet, or 0 when the packet follows uncompressed.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"

	"github.com/danmuck/protoforge/internal/protocol/wire"
)

const (
	DefaultThreshold   = 256
	DefaultMaxInflated = 8 * 1024 * 1024
)

var (
	ErrSizeMismatch = errors.New("compress: inflated size does not match declared size")
	ErrTrailingData = errors.New("compress: trailing data after zlib stream")
)

// Compressor holds the zlib state for one direction of a connection. It is
// not safe for concurrent use.
type Compressor struct {
	threshold   int
	maxInflated int

	zw  *zlib.Writer
	zr  io.ReadCloser
	src bytes.Reader
}

// New returns a compressor that compresses payloads longer than threshold
// bytes at the given zlib level.
func New(threshold, maxInflated, level int) (*Compressor, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("compress: negative threshold %d", threshold)
	}
	if maxInflated <= 0 {
		maxInflated = DefaultMaxInflated
	}
	zw, err := zlib.NewWriterLevel(io.Discard, level)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return &Compressor{threshold: threshold, maxInflated: maxInflated, zw: zw}, nil
}

func (c *Compressor) Threshold() int { return c.threshold }

func (c *Compressor) MaxInflated() int { return c.maxInflated }

// Append writes the compressed form of payload to dst.
func (c *Compressor) Append(dst, payload []byte) ([]byte, error) {
	if len(payload) <= c.threshold {
		dst = wire.AppendVarInt(dst, 0)
		return append(dst, payload...), nil
	}
	if len(payload) > c.maxInflated || len(payload) > math.MaxInt32 {
		return dst, fmt.Errorf("%w: payload %d > %d", wire.ErrValueTooLarge, len(payload), c.maxInflated)
	}
	out := bytes.NewBuffer(wire.AppendVarInt(dst, int32(len(payload))))
	c.zw.Reset(out)
	if _, err := c.zw.Write(payload); err != nil {
		return dst, fmt.Errorf("compress: deflate: %w", err)
	}
	if err := c.zw.Close(); err != nil {
		return dst, fmt.Errorf("compress: deflate: %w", err)
	}
	return out.Bytes(), nil
}

// Decompress returns the packet payload carried by a frame body. An
// uncompressed payload aliases body. Peers may compress payloads at or below
// the threshold, so any non-zero declared size is inflated.
func (c *Compressor) Decompress(body []byte) ([]byte, error) {
	size, n, err := wire.DecodeVarInt(body)
	if err != nil {
		if errors.Is(err, wire.ErrNotEnoughBytes) {
			return nil, fmt.Errorf("%w: missing size prefix", wire.ErrMalformed)
		}
		return nil, fmt.Errorf("compress: size prefix: %w", err)
	}
	if size == 0 {
		return body[n:], nil
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative inflated size %d", wire.ErrMalformed, size)
	}
	if int(size) > c.maxInflated {
		return nil, fmt.Errorf("%w: inflated size %d > %d", wire.ErrValueTooLarge, size, c.maxInflated)
	}

	if err := c.reset(body[n:]); err != nil {
		return nil, fmt.Errorf("%w: zlib header: %v", wire.ErrMalformed, err)
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(c.zr, out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w: short stream", wire.ErrMalformed, ErrSizeMismatch)
		}
		return nil, fmt.Errorf("%w: inflate: %v", wire.ErrMalformed, err)
	}
	var extra [1]byte
	switch _, err := io.ReadFull(c.zr, extra[:]); {
	case err == nil:
		return nil, fmt.Errorf("%w: %w: stream longer than %d", wire.ErrMalformed, ErrSizeMismatch, size)
	case !errors.Is(err, io.EOF):
		return nil, fmt.Errorf("%w: inflate: %v", wire.ErrMalformed, err)
	}
	if c.src.Len() > 0 {
		return nil, fmt.Errorf("%w: %w: %d bytes", wire.ErrMalformed, ErrTrailingData, c.src.Len())
	}
	return out, nil
}

func (c *Compressor) reset(src []byte) error {
	c.src.Reset(src)
	if c.zr == nil {
		zr, err := zlib.NewReader(&c.src)
		if err != nil {
			return err
		}
		c.zr = zr
		return nil
	}
	return c.zr.(zlib.Resetter).Reset(&c.src, nil)
}
