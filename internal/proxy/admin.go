package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/protoforge/internal/auth"
	"github.com/danmuck/protoforge/internal/observability"
)

// AdminConfig configures the admin HTTP surface. An empty Token leaves every
// route open.
type AdminConfig struct {
	Addr        string
	CorsOrigins []string
	Token       string
}

// AdminRouter builds the admin HTTP surface for the relay.
func (r *Relay) AdminRouter(cfg AdminConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestLogger(log.Logger))
	router.Use(observability.RequestMetricsMiddleware(r.name))
	router.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = router.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"proxy":    r.name,
			"upstream": r.upstream,
			"uptime":   time.Since(r.started).String(),
			"sessions": len(r.Sessions()),
			"total":    r.total.Load(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	private := router.Group("/")
	if cfg.Token != "" {
		private.Use(auth.RequireToken(auth.StaticToken{Token: cfg.Token}))
	}
	private.GET("/protocol", func(c *gin.Context) {
		report := r.proto.Report()
		c.JSON(http.StatusOK, gin.H{
			"version":       r.proto.Version(),
			"game_version":  r.proto.Schema().GameVersion,
			"major_version": r.proto.Schema().MajorVersion,
			"groups":        r.proto.Summary(),
			"gaps":          len(report.Gaps),
			"rules":         r.rules.Len(),
		})
	})
	private.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": r.Sessions()})
	})
	return router
}

// ServeAdmin runs the admin router on cfg.Addr until ctx is cancelled.
func (r *Relay) ServeAdmin(ctx context.Context, cfg AdminConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r.AdminRouter(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.Addr).Bool("token", cfg.Token != "").Msg("proxy.Relay admin listening")
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
