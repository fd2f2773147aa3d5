package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/protoforge/internal/config"
	"github.com/danmuck/protoforge/internal/observability"
	"github.com/danmuck/protoforge/internal/protocol/packet"
	"github.com/danmuck/protoforge/internal/protocol/schema"
	"github.com/danmuck/protoforge/internal/proxy"
)

// Service wires the relay and its admin surface from a proxy config.
type Service struct {
	cfg    config.ProxyConfig
	relay  *proxy.Relay
	logger zerolog.Logger
}

func NewService(cfg config.ProxyConfig) (*Service, error) {
	logger := observability.InitLogger(cfg.Name)
	p, err := schema.Load(cfg.Schema)
	if err != nil {
		return nil, err
	}
	proto, err := packet.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", cfg.Schema, err)
	}
	rules, err := proxy.CompileRules(cfg.Rules, proto)
	if err != nil {
		return nil, err
	}
	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		relay:  proxy.NewRelay(cfg.Name, cfg.Upstream, proto, rules, sessionCfg),
		logger: logger,
	}, nil
}

func (s *Service) Relay() *proxy.Relay { return s.relay }

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx)
}

func (s *Service) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.logger.Info().
		Str("listen", s.cfg.Listen).
		Str("upstream", s.cfg.Upstream).
		Str("schema", s.cfg.Schema).
		Uint64("protocol", s.relay.Protocol().Version()).
		Msg("protoproxy starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.relay.Serve(ctx, ln)
	})
	if strings.TrimSpace(s.cfg.AdminAddr) != "" {
		g.Go(func() error {
			return s.relay.ServeAdmin(ctx, proxy.AdminConfig{
				Addr:        s.cfg.AdminAddr,
				CorsOrigins: s.cfg.CorsOrigins,
				Token:       s.cfg.AdminToken,
			})
		})
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.logger.Info().Err(err).Msg("protoproxy stopped")
	return err
}
