package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "proxy":
		return proxyTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const proxyTemplate = `name = "protoproxy"
listen = ":25566"
upstream = "localhost:25565"
schema = "protocol.toml"
admin_addr = "127.0.0.1:9400"
admin_token = ""
cors_origins = ["http://localhost:3000"]

[limits]
max_frame_size = 2097151
max_inflated = 8388608
compression_level = -1

[timeouts]
dial = "5s"
read = "30s"
write = "15s"
dial_attempts = 5

[[rules]]
packet = "handshake"
direction = "serverbound"
stage = "handshaking"
action = "transition"
field = "next_state"
targets = { "1" = "status", "2" = "login" }

[[rules]]
packet = "set_compression"
direction = "clientbound"
stage = "login"
action = "compression"
field = "threshold"

[[rules]]
packet = "login_success"
direction = "clientbound"
stage = "login"
action = "transition"
to = "play"

[[rules]]
packet = "encryption_request"
direction = "clientbound"
stage = "login"
action = "encryption"
`
