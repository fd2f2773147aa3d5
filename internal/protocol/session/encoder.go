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

// Encoder produces the outbound byte stream of one connection.
type Encoder struct {
	proto     *packet.Protocol
	direction schema.Direction
	stage     schema.Stage
	group     *packet.Group
	cfg       Config

	comp      *compress.Compressor
	stream    cipher.Stream
	encrypted bool
	body      []byte
	inner     []byte
}

// NewEncoder returns an encoder for packets travelling in direction d,
// starting in the Handshaking stage.
func NewEncoder(proto *packet.Protocol, d schema.Direction, cfg Config) *Encoder {
	e := &Encoder{proto: proto, direction: d, cfg: cfg.withDefaults()}
	e.Reset()
	return e
}

func (e *Encoder) Direction() schema.Direction { return e.direction }
func (e *Encoder) Stage() schema.Stage         { return e.stage }
func (e *Encoder) Group() *packet.Group        { return e.group }
func (e *Encoder) CompressionEnabled() bool    { return e.comp != nil }
func (e *Encoder) EncryptionEnabled() bool     { return e.encrypted }

// AppendPacket appends the wire form of p to dst. dst is returned unchanged
// on error and the cipher state does not advance.
func (e *Encoder) AppendPacket(dst []byte, p packet.Packet) ([]byte, error) {
	if !e.group.Contains(p) {
		return dst, fmt.Errorf("%w: %s is not in %s/%s", packet.ErrWrongGroup, p.Name(), e.direction, e.stage)
	}
	body, err := p.AppendTo(e.body[:0])
	if err != nil {
		return dst, err
	}
	e.body = body
	return e.AppendPayload(dst, body)
}

// AppendPayload frames an already encoded packet body (id included).
func (e *Encoder) AppendPayload(dst, payload []byte) ([]byte, error) {
	inner := payload
	if e.comp != nil {
		var err error
		e.inner, err = e.comp.Append(e.inner[:0], payload)
		if err != nil {
			return dst, fmt.Errorf("session: %s compress: %w", e.direction, err)
		}
		inner = e.inner
	}
	start := len(dst)
	out, err := frame.Append(dst, inner, e.cfg.MaxFrameSize)
	if err != nil {
		return dst, fmt.Errorf("session: %s frame: %w", e.direction, err)
	}
	if e.stream != nil {
		e.stream.XORKeyStream(out[start:], out[start:])
	}
	return out, nil
}

func (e *Encoder) SetStage(s schema.Stage) error {
	if err := CheckTransition(e.stage, s); err != nil {
		return err
	}
	e.stage = s
	e.group = e.proto.Group(e.direction, s)
	return nil
}

func (e *Encoder) Reset() {
	e.stage = schema.Handshaking
	e.group = e.proto.Group(e.direction, schema.Handshaking)
	e.comp = nil
	e.stream = nil
	e.encrypted = false
}

// EnableCompression applies to every frame appended afterwards. A negative
// threshold turns compression off.
func (e *Encoder) EnableCompression(threshold int) error {
	if threshold < 0 {
		e.comp = nil
		return nil
	}
	comp, err := compress.New(threshold, e.cfg.MaxInflated, e.cfg.CompressionLevel)
	if err != nil {
		return err
	}
	e.comp = comp
	return nil
}

// EnableEncryption encrypts every byte appended afterwards. It may be called
// once per connection.
func (e *Encoder) EnableEncryption(secret []byte) error {
	if e.encrypted {
		return ErrEncryptionEnabled
	}
	stream, err := crypt.NewEncrypter(secret)
	if err != nil {
		return err
	}
	e.stream = stream
	e.encrypted = true
	return nil
}
