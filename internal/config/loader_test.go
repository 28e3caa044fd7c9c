package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Realtime.ReconnectAttempts != 5 || cfg.Realtime.ReconnectDelay != time.Second {
		t.Fatalf("unexpected realtime defaults: %+v", cfg.Realtime)
	}
	if cfg.Relay.Addr != ":8080" {
		t.Fatalf("unexpected relay addr %q", cfg.Relay.Addr)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	file := `
log_level: debug
realtime:
  url: ws://file.example/ws
  reconnect_delay: 2s
api:
  base_url: http://file.example/api
`
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MARKETSYNC_API_BASE_URL", "http://env.example/api")
	t.Setenv("MARKETSYNC_RELAY_ACTIONS_PER_MINUTE", "42")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Realtime.URL != "ws://file.example/ws" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Realtime.ReconnectDelay != 2*time.Second {
		t.Fatalf("expected 2s reconnect delay, got %s", cfg.Realtime.ReconnectDelay)
	}
	if cfg.API.BaseURL != "http://env.example/api" {
		t.Fatalf("env should override file, got %q", cfg.API.BaseURL)
	}
	if cfg.Relay.ActionsPerMinute != 42 {
		t.Fatalf("env should override default, got %d", cfg.Relay.ActionsPerMinute)
	}
	if cfg.Realtime.ReconnectAttempts != 5 {
		t.Fatalf("defaults should survive a partial file, got %d", cfg.Realtime.ReconnectAttempts)
	}
}

func TestRelayUpdateFrom(t *testing.T) {
	cfg := Default().Relay
	cfg.UpdateFrom(RelayConfig{Addr: ":9090"})
	if cfg.Addr != ":9090" || cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected merge result: %+v", cfg)
	}
}
