package session

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/protoforge/internal/protocol/packet"
)

// Stats counts traffic on a Conn. Byte counts are wire bytes.
type Stats struct {
	BytesIn   uint64
	BytesOut  uint64
	FramesIn  uint64
	FramesOut uint64
}

// Controls are codec changes queued for the goroutine that owns a direction.
type (
	InboundControl  func(*Decoder) error
	OutboundControl func(*Encoder) error
)

// Conn runs the transport codec over a net.Conn. One goroutine may read
// while another writes.
type Conn struct {
	conn net.Conn
	side Side
	cfg  Config
	dec  *Decoder
	enc  *Encoder
	rbuf []byte
	wbuf []byte

	mu       sync.Mutex
	inbound  []InboundControl
	outbound []OutboundControl

	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
	framesIn  atomic.Uint64
	framesOut atomic.Uint64
}

func NewConn(c net.Conn, proto *packet.Protocol, side Side, cfg Config) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		conn: c,
		side: side,
		cfg:  cfg,
		dec:  NewDecoder(proto, side.Inbound(), cfg),
		enc:  NewEncoder(proto, side.Outbound(), cfg),
		rbuf: make([]byte, cfg.ReadBufferSize),
	}
}

func (c *Conn) Side() Side           { return c.side }
func (c *Conn) NetConn() net.Conn    { return c.conn }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Decoder must only be used by the reading goroutine.
func (c *Conn) Decoder() *Decoder { return c.dec }

// Encoder must only be used by the writing goroutine.
func (c *Conn) Encoder() *Encoder { return c.enc }

func (c *Conn) Stats() Stats {
	return Stats{
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
		FramesIn:  c.framesIn.Load(),
		FramesOut: c.framesOut.Load(),
	}
}

func (c *Conn) Close() error { return c.conn.Close() }

// QueueInbound schedules fn to run on the reading goroutine before it
// extracts its next frame.
func (c *Conn) QueueInbound(fn InboundControl) {
	c.mu.Lock()
	c.inbound = append(c.inbound, fn)
	c.mu.Unlock()
}

// QueueOutbound schedules fn to run on the writing goroutine before its
// next write.
func (c *Conn) QueueOutbound(fn OutboundControl) {
	c.mu.Lock()
	c.outbound = append(c.outbound, fn)
	c.mu.Unlock()
}

func (c *Conn) applyInbound() error {
	c.mu.Lock()
	queued := c.inbound
	c.inbound = nil
	c.mu.Unlock()
	for _, fn := range queued {
		if err := fn(c.dec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) applyOutbound() error {
	c.mu.Lock()
	queued := c.outbound
	c.outbound = nil
	c.mu.Unlock()
	for _, fn := range queued {
		if err := fn(c.enc); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame blocks until a complete frame arrives and returns its
// decompressed payload. The payload is valid until the next read call.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := c.applyInbound(); err != nil {
			return nil, err
		}
		payload, ok, err := c.dec.NextFrame()
		if err != nil {
			return nil, err
		}
		if ok {
			c.framesIn.Add(1)
			return payload, nil
		}
		if err := c.fill(ctx); err != nil {
			return nil, err
		}
	}
}

// ReadPacket reads one frame and decodes it with the current inbound group.
func (c *Conn) ReadPacket(ctx context.Context) (packet.Packet, error) {
	payload, err := c.ReadFrame(ctx)
	if err != nil {
		return packet.Packet{}, err
	}
	return c.dec.Group().Decode(payload)
}

func (c *Conn) fill(ctx context.Context) error {
	stop, err := c.deadline(ctx, c.conn.SetReadDeadline, c.cfg.ReadTimeout)
	if err != nil {
		return err
	}
	defer stop()
	n, err := c.conn.Read(c.rbuf)
	if n > 0 {
		c.bytesIn.Add(uint64(n))
		_, _ = c.dec.Write(c.rbuf[:n])
	}
	if err != nil {
		return contextErr(ctx, err)
	}
	return nil
}

// WritePacket encodes p with the current outbound group and writes it.
func (c *Conn) WritePacket(ctx context.Context, p packet.Packet) error {
	if err := c.applyOutbound(); err != nil {
		return err
	}
	out, err := c.enc.AppendPacket(c.wbuf[:0], p)
	if err != nil {
		return err
	}
	c.wbuf = out
	return c.write(ctx, out)
}

// WritePayload frames an already encoded packet body and writes it.
func (c *Conn) WritePayload(ctx context.Context, payload []byte) error {
	if err := c.applyOutbound(); err != nil {
		return err
	}
	out, err := c.enc.AppendPayload(c.wbuf[:0], payload)
	if err != nil {
		return err
	}
	c.wbuf = out
	return c.write(ctx, out)
}

func (c *Conn) write(ctx context.Context, out []byte) error {
	stop, err := c.deadline(ctx, c.conn.SetWriteDeadline, c.cfg.WriteTimeout)
	if err != nil {
		return err
	}
	defer stop()
	n, err := c.conn.Write(out)
	c.bytesOut.Add(uint64(n))
	if err != nil {
		return contextErr(ctx, err)
	}
	c.framesOut.Add(1)
	return nil
}

// deadline applies the earlier of the context deadline and timeout, and
// interrupts the pending call when ctx is cancelled.
func (c *Conn) deadline(ctx context.Context, set func(time.Time) error, timeout time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var at time.Time
	if timeout > 0 {
		at = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (at.IsZero() || d.Before(at)) {
		at = d
	}
	if err := set(at); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = set(time.Unix(1, 0))
	})
	return func() { stop() }, nil
}

// contextErr reports a deadline hit caused by ctx as the context error.
func contextErr(ctx context.Context, err error) error {
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}
