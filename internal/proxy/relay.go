package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/protoforge/internal/observability"
	"github.com/danmuck/protoforge/internal/protocol/packet"
	"github.com/danmuck/protoforge/internal/protocol/schema"
	"github.com/danmuck/protoforge/internal/protocol/session"
	"github.com/danmuck/protoforge/internal/protocol/wire"
)

// Relay accepts client connections and pipes each one to the upstream
// server.
type Relay struct {
	name     string
	upstream string
	proto    *packet.Protocol
	rules    *Rules
	cfg      session.Config
	started  time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	total    atomic.Uint64
}

func NewRelay(name, upstream string, proto *packet.Protocol, rules *Rules, cfg session.Config) *Relay {
	observability.RegisterMetrics()
	if rules == nil {
		rules = &Rules{byIdent: make(map[schema.Identifier][]Rule)}
	}
	return &Relay{
		name:     name,
		upstream: upstream,
		proto:    proto,
		rules:    rules,
		cfg:      cfg,
		started:  time.Now(),
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (r *Relay) Protocol() *packet.Protocol { return r.proto }

// Serve accepts connections until ctx is cancelled or ln fails.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	log.Info().Str("listen", ln.Addr().String()).Str("upstream", r.upstream).Int("rules", r.rules.Len()).Msg("proxy.Relay.Serve ready")

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("proxy: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Handle(ctx, conn); err != nil {
				log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("proxy.Relay session ended")
			}
		}()
	}
}

// Handle relays one accepted client connection until either side closes.
func (r *Relay) Handle(ctx context.Context, clientConn net.Conn) error {
	defer clientConn.Close()
	upConn, err := session.DialContext(ctx, "tcp", r.upstream, r.cfg)
	if err != nil {
		return err
	}
	defer upConn.Close()
	return r.relay(ctx, clientConn, upConn)
}

func (r *Relay) relay(ctx context.Context, clientConn, upConn net.Conn) error {
	s := newSession(
		session.NewConn(clientConn, r.proto, session.Server, r.cfg),
		session.NewConn(upConn, r.proto, session.Client, r.cfg),
	)
	r.track(s)
	defer r.untrack(s)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return r.pump(ctx, s, s.client, s.upstream)
	})
	g.Go(func() error {
		defer cancel()
		return r.pump(ctx, s, s.upstream, s.client)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// pump forwards frames read from src to dst.
func (r *Relay) pump(ctx context.Context, s *Session, src, dst *session.Conn) error {
	dir := src.Side().Inbound()
	logger := log.With().Str("session", s.ID.String()).Str("direction", dir.String()).Logger()
	for {
		payload, err := src.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		dec := src.Decoder()
		observability.RecordFrame(dir.String(), len(payload), dec.CompressionEnabled())

		var eff Effect
		p, err := dec.Group().Decode(payload)
		if err != nil {
			observability.RecordDecodeError(dir.String(), dec.Stage().String(), errorKind(err))
			logger.Warn().Err(err).Str("stage", dec.Stage().String()).Int("bytes", len(payload)).Msg("proxy.pump undecodable packet forwarded")
		} else {
			observability.RecordPacket(dir.String(), dec.Stage().String(), p.Name())
			logger.Trace().Str("packet", p.Name()).Int("bytes", len(payload)).Msg("proxy.pump packet")
			if eff, err = r.rules.Evaluate(p); err != nil {
				return err
			}
		}
		if eff.Encryption {
			return fmt.Errorf("%w: %s", ErrEncryptedSession, p.Name())
		}

		// The peer pump must see the change before the far end can react
		// to the packet being forwarded.
		if eff.Transition {
			dst.QueueInbound(func(d *session.Decoder) error { return d.SetStage(eff.Stage) })
			src.QueueOutbound(func(e *session.Encoder) error { return e.SetStage(eff.Stage) })
		}
		if eff.Compression {
			dst.QueueInbound(func(d *session.Decoder) error { return d.EnableCompression(eff.Threshold) })
			src.QueueOutbound(func(e *session.Encoder) error { return e.EnableCompression(eff.Threshold) })
		}

		if err := dst.WritePayload(ctx, payload); err != nil {
			return err
		}

		if eff.Transition {
			if err := dec.SetStage(eff.Stage); err != nil {
				return err
			}
			if err := dst.Encoder().SetStage(eff.Stage); err != nil {
				return err
			}
			s.setStage(eff.Stage)
			logger.Info().Str("stage", eff.Stage.String()).Msg("proxy.pump stage transition")
		}
		if eff.Compression {
			if err := dec.EnableCompression(eff.Threshold); err != nil {
				return err
			}
			if err := dst.Encoder().EnableCompression(eff.Threshold); err != nil {
				return err
			}
			logger.Info().Int("threshold", eff.Threshold).Msg("proxy.pump compression enabled")
		}
	}
}

func errorKind(err error) string {
	var nep *packet.NonExistentPacketError
	switch {
	case errors.As(err, &nep):
		return "unknown_packet"
	case errors.Is(err, wire.ErrValueTooLarge):
		return "too_large"
	case errors.Is(err, wire.ErrMalformed):
		return "malformed"
	default:
		return "other"
	}
}
