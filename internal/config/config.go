package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/protoforge/internal/protocol/schema"
	"github.com/danmuck/protoforge/internal/protocol/session"
)

// Rule actions.
const (
	ActionTransition  = "transition"
	ActionCompression = "compression"
	ActionEncryption  = "encryption"
)

type ProxyConfig struct {
	Name        string         `toml:"name"`
	Listen      string         `toml:"listen"`
	Upstream    string         `toml:"upstream"`
	Schema      string         `toml:"schema"`
	AdminAddr   string         `toml:"admin_addr"`
	AdminToken  string         `toml:"admin_token"`
	CorsOrigins []string       `toml:"cors_origins"`
	Limits      LimitsConfig   `toml:"limits"`
	Timeouts    TimeoutsConfig `toml:"timeouts"`
	Rules       []RuleConfig   `toml:"rules"`
}

type LimitsConfig struct {
	MaxFrameSize     int `toml:"max_frame_size"`
	MaxInflated      int `toml:"max_inflated"`
	CompressionLevel int `toml:"compression_level"`
}

// TimeoutsConfig holds durations in time.ParseDuration form.
type TimeoutsConfig struct {
	Dial         string `toml:"dial"`
	Read         string `toml:"read"`
	Write        string `toml:"write"`
	DialAttempts int    `toml:"dial_attempts"`
}

// RuleConfig reacts to one packet. A transition moves both directions of
// the session to To, or to Targets[value of Field] when Field is set. A
// compression rule reads the threshold from Field. An encryption rule marks
// the packet that starts encryption.
type RuleConfig struct {
	Packet    string            `toml:"packet"`
	Direction string            `toml:"direction"`
	Stage     string            `toml:"stage"`
	Action    string            `toml:"action"`
	Field     string            `toml:"field"`
	To        string            `toml:"to"`
	Targets   map[string]string `toml:"targets"`
	Match     map[string]string `toml:"match"`
}

func LoadProxyConfig(path string) (ProxyConfig, error) {
	var cfg ProxyConfig
	if err := loadToml(path, &cfg); err != nil {
		return ProxyConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "protoproxy"
	}
	if cfg.Listen == "" {
		cfg.Listen = ":25566"
	}
	if err := ValidateProxyConfig(cfg); err != nil {
		return ProxyConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateProxyConfig(cfg ProxyConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("proxy config missing name")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("proxy config missing listen")
	}
	if strings.TrimSpace(cfg.Upstream) == "" {
		return fmt.Errorf("proxy config missing upstream")
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		return fmt.Errorf("proxy config missing schema")
	}
	if cfg.Limits.MaxFrameSize < 0 || cfg.Limits.MaxInflated < 0 {
		return fmt.Errorf("proxy config limits must not be negative")
	}
	if _, err := cfg.SessionConfig(); err != nil {
		return err
	}
	for i, rule := range cfg.Rules {
		if err := ValidateRule(rule); err != nil {
			return fmt.Errorf("rule[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateRule(rule RuleConfig) error {
	if strings.TrimSpace(rule.Packet) == "" {
		return fmt.Errorf("packet is required")
	}
	if _, err := schema.ParseDirection(rule.Direction); err != nil {
		return err
	}
	if _, err := schema.ParseStage(rule.Stage); err != nil {
		return err
	}
	switch rule.Action {
	case ActionTransition:
		if rule.Field == "" {
			if _, err := schema.ParseStage(rule.To); err != nil {
				return fmt.Errorf("transition target: %w", err)
			}
			return nil
		}
		if len(rule.Targets) == 0 {
			return fmt.Errorf("transition on field %q needs targets", rule.Field)
		}
		for value, stage := range rule.Targets {
			if _, err := schema.ParseStage(stage); err != nil {
				return fmt.Errorf("target %q: %w", value, err)
			}
		}
	case ActionCompression:
		if rule.Field == "" {
			return fmt.Errorf("compression rule needs the threshold field")
		}
	case ActionEncryption:
	default:
		return fmt.Errorf("unknown action %q", rule.Action)
	}
	return nil
}

// SessionConfig overlays the configured limits and timeouts on the session
// defaults.
func (c ProxyConfig) SessionConfig() (session.Config, error) {
	out := session.DefaultConfig()
	if c.Limits.MaxFrameSize > 0 {
		out.MaxFrameSize = c.Limits.MaxFrameSize
	}
	if c.Limits.MaxInflated > 0 {
		out.MaxInflated = c.Limits.MaxInflated
	}
	if c.Limits.CompressionLevel != 0 {
		out.CompressionLevel = c.Limits.CompressionLevel
	}
	if c.Timeouts.DialAttempts > 0 {
		out.DialAttempts = c.Timeouts.DialAttempts
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"dial", c.Timeouts.Dial, &out.DialTimeout},
		{"read", c.Timeouts.Read, &out.ReadTimeout},
		{"write", c.Timeouts.Write, &out.WriteTimeout},
	} {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return session.Config{}, fmt.Errorf("timeouts.%s: %w", d.name, err)
		}
		if v < 0 {
			return session.Config{}, fmt.Errorf("timeouts.%s must not be negative", d.name)
		}
		*d.dst = v
	}
	return out, nil
}
