package session

import (
	"crypto/cipher"
	"fmt"

	"github.com/danmuck/protoforge/internal/protocol/compress"
	"github.com/danmuck/protoforge/internal/protocol/crypt"
	"github.com/danmuck/protoforge/internal/protocol/frame"
	"github.com/danmuck/protoforge/internal/protocol/packet"
	"github.com/danmuck/protoforge/internal/protocol/schema"
)

// Decoder turns the inbound byte stream of one connection into packets.
// It never blocks: Write buffers bytes and Next reports whether a complete
// frame is available yet.
type Decoder struct {
	proto     *packet.Protocol
	direction schema.Direction
	stage     schema.Stage
	group     *packet.Group
	cfg       Config

	buf       []byte
	off       int
	decrypted int
	delim     *frame.Delimiter
	comp      *compress.Compressor
	stream    cipher.Stream
	encrypted bool
	err       error
}

// NewDecoder returns a decoder for packets travelling in direction d,
// starting in the Handshaking stage.
func NewDecoder(proto *packet.Protocol, d schema.Direction, cfg Config) *Decoder {
	cfg = cfg.withDefaults()
	dec := &Decoder{proto: proto, direction: d, cfg: cfg, delim: frame.NewDelimiter(cfg.MaxFrameSize)}
	dec.Reset()
	return dec
}

func (d *Decoder) Direction() schema.Direction { return d.direction }
func (d *Decoder) Stage() schema.Stage         { return d.stage }
func (d *Decoder) Group() *packet.Group        { return d.group }
func (d *Decoder) CompressionEnabled() bool    { return d.comp != nil }
func (d *Decoder) EncryptionEnabled() bool     { return d.encrypted }

// Buffered reports the number of received bytes not yet returned as frames.
func (d *Decoder) Buffered() int { return len(d.buf) - d.off }

// Write appends raw connection bytes. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.off > 0 && (d.off == len(d.buf) || d.off >= cap(d.buf)/2) {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.decrypted = max(d.decrypted-d.off, 0)
		d.off = 0
	}
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// NextFrame returns the next decompressed packet payload. ok is false when
// more bytes are needed. The payload is only valid until the next Write.
// Framing, decompression and size errors are sticky: the stream cannot be
// resynchronised after them.
func (d *Decoder) NextFrame() (payload []byte, ok bool, err error) {
	if d.err != nil {
		return nil, false, d.err
	}
	if d.stream != nil && d.decrypted < len(d.buf) {
		d.stream.XORKeyStream(d.buf[d.decrypted:], d.buf[d.decrypted:])
		d.decrypted = len(d.buf)
	}
	body, n, err := d.delim.Next(d.buf[d.off:])
	d.off += n
	if err != nil {
		d.err = fmt.Errorf("session: %s frame: %w", d.direction, err)
		return nil, false, d.err
	}
	if body == nil {
		return nil, false, nil
	}
	if d.comp == nil {
		return body, true, nil
	}
	payload, err = d.comp.Decompress(body)
	if err != nil {
		d.err = fmt.Errorf("session: %s frame: %w", d.direction, err)
		return nil, false, d.err
	}
	return payload, true, nil
}

// Next decodes the next packet with the current stage's group. ok is false
// when more bytes are needed. A packet that fails to decode consumes its
// frame; the decoder stays usable.
func (d *Decoder) Next() (packet.Packet, bool, error) {
	payload, ok, err := d.NextFrame()
	if err != nil || !ok {
		return packet.Packet{}, false, err
	}
	p, err := d.group.Decode(payload)
	if err != nil {
		return packet.Packet{}, false, err
	}
	return p, true, nil
}

// SetStage switches the packet group. Compression and encryption state is
// kept.
func (d *Decoder) SetStage(s schema.Stage) error {
	if err := CheckTransition(d.stage, s); err != nil {
		return err
	}
	d.stage = s
	d.group = d.proto.Group(d.direction, s)
	return nil
}

// Reset prepares the decoder for a new connection.
func (d *Decoder) Reset() {
	d.stage = schema.Handshaking
	d.group = d.proto.Group(d.direction, schema.Handshaking)
	d.buf = d.buf[:0]
	d.off = 0
	d.decrypted = 0
	d.delim.Reset()
	d.comp = nil
	d.stream = nil
	d.encrypted = false
	d.err = nil
}

// EnableCompression applies to every frame after the current one. A
// negative threshold turns compression off.
func (d *Decoder) EnableCompression(threshold int) error {
	if threshold < 0 {
		d.comp = nil
		return nil
	}
	comp, err := compress.New(threshold, d.cfg.MaxInflated, d.cfg.CompressionLevel)
	if err != nil {
		return err
	}
	d.comp = comp
	return nil
}

// EnableEncryption decrypts every byte after the last frame returned,
// including bytes already buffered. It may be called once per connection.
func (d *Decoder) EnableEncryption(secret []byte) error {
	if d.encrypted {
		return ErrEncryptionEnabled
	}
	if d.delim.State() != frame.AwaitingLength {
		return ErrMidFrame
	}
	stream, err := crypt.NewDecrypter(secret)
	if err != nil {
		return err
	}
	d.stream = stream
	d.encrypted = true
	d.decrypted = d.off
	return nil
}
