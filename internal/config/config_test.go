package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

func TestTemplateLoadsAndValidates(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "protoproxy.toml")
	if err := WriteTemplate(path, "proxy", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "proxy", false); err == nil {
		t.Fatalf("expected existing config error")
	}
	cfg, err := LoadProxyConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Upstream != "localhost:25565" || len(cfg.Rules) != 4 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Rules[0].Targets["2"] != "login" {
		t.Fatalf("targets not decoded: %+v", cfg.Rules[0])
	}

	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	if sc.ReadTimeout != 30*time.Second || sc.DialAttempts != 5 || sc.MaxFrameSize != 2097151 {
		t.Fatalf("unexpected session config: %+v", sc)
	}
}

func TestLoadProxyConfigDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "min.toml")
	raw := "upstream = \"mc.example:25565\"\nschema = \"p.toml\"\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadProxyConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "protoproxy" || cfg.Listen != ":25566" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidateProxyConfigRejects(t *testing.T) {
	testlog.Start(t)
	base := ProxyConfig{Name: "p", Listen: ":1", Upstream: "h:2", Schema: "s.toml"}
	cases := []struct {
		name   string
		mutate func(*ProxyConfig)
		want   string
	}{
		{"missing upstream", func(c *ProxyConfig) { c.Upstream = "" }, "missing upstream"},
		{"missing schema", func(c *ProxyConfig) { c.Schema = " " }, "missing schema"},
		{"bad duration", func(c *ProxyConfig) { c.Timeouts.Read = "soon" }, "timeouts.read"},
		{"negative limit", func(c *ProxyConfig) { c.Limits.MaxFrameSize = -1 }, "negative"},
		{"unknown action", func(c *ProxyConfig) {
			c.Rules = []RuleConfig{{Packet: "x", Direction: "serverbound", Stage: "play", Action: "drop"}}
		}, "unknown action"},
		{"bad direction", func(c *ProxyConfig) {
			c.Rules = []RuleConfig{{Packet: "x", Direction: "sideways", Stage: "play", Action: ActionEncryption}}
		}, "unknown direction"},
		{"transition without target", func(c *ProxyConfig) {
			c.Rules = []RuleConfig{{Packet: "x", Direction: "serverbound", Stage: "login", Action: ActionTransition}}
		}, "transition target"},
		{"field without targets", func(c *ProxyConfig) {
			c.Rules = []RuleConfig{{Packet: "x", Direction: "serverbound", Stage: "handshaking", Action: ActionTransition, Field: "next"}}
		}, "needs targets"},
		{"compression without field", func(c *ProxyConfig) {
			c.Rules = []RuleConfig{{Packet: "x", Direction: "clientbound", Stage: "login", Action: ActionCompression}}
		}, "threshold field"},
	}
	if err := ValidateProxyConfig(base); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		err := ValidateProxyConfig(cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestTemplateUnknownKind(t *testing.T) {
	testlog.Start(t)
	if _, err := Template("mirror"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
