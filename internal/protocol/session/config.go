package session

import (
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/danmuck/protoforge/internal/protocol/compress"
	"github.com/danmuck/protoforge/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config holds codec limits and connection timeouts. CompressionLevel is a
// zlib level; zero selects the default level.
type Config struct {
	MaxFrameSize     int
	MaxInflated      int
	CompressionLevel int
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadBufferSize   int
	DialAttempts     int
	Backoff          BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		MaxFrameSize:     frame.DefaultMaxFrameSize,
		MaxInflated:      compress.DefaultMaxInflated,
		CompressionLevel: zlib.DefaultCompression,
		DialTimeout:      5 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     15 * time.Second,
		ReadBufferSize:   32 * 1024,
		DialAttempts:     5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// withDefaults fills zero limits so a partially populated Config still
// behaves.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.MaxInflated <= 0 {
		c.MaxInflated = def.MaxInflated
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = def.CompressionLevel
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = 1
	}
	return c
}
