package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds client and relay configuration values.
type Config struct {
	LogLevel  string         `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string         `mapstructure:"log_format" yaml:"log_format"`
	Realtime  RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	API       APIConfig      `mapstructure:"api" yaml:"api"`
	Session   SessionConfig  `mapstructure:"session" yaml:"session"`
	Alerts    AlertsConfig   `mapstructure:"alerts" yaml:"alerts"`
	Relay     RelayConfig    `mapstructure:"relay" yaml:"relay"`
}

// RealtimeConfig controls the WebSocket connections of the providers.
type RealtimeConfig struct {
	URL               string        `mapstructure:"url" yaml:"url"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadLimit         int64         `mapstructure:"read_limit" yaml:"read_limit"`
}

// APIConfig controls the REST client.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	BreakerFailures int           `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// SessionConfig locates the credential database.
type SessionConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AlertsConfig toggles the sound and desktop side effects.
type AlertsConfig struct {
	Sound        bool          `mapstructure:"sound" yaml:"sound"`
	Desktop      bool          `mapstructure:"desktop" yaml:"desktop"`
	ToneHz       float64       `mapstructure:"tone_hz" yaml:"tone_hz"`
	ToneDuration time.Duration `mapstructure:"tone_duration" yaml:"tone_duration"`
}

// RelayConfig holds the development relay settings.
type RelayConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL            time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ActionsPerMinute  int           `mapstructure:"actions_per_minute" yaml:"actions_per_minute"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Realtime: RealtimeConfig{
			URL:               "ws://localhost:8080/ws",
			ReconnectAttempts: 5,
			ReconnectDelay:    time.Second,
			ConnectTimeout:    20 * time.Second,
			ReadLimit:         1 << 20,
		},
		API: APIConfig{
			BaseURL:         "http://localhost:8080/api",
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Session: SessionConfig{
			Path: filepath.Join(dataDir(), "session.db"),
		},
		Alerts: AlertsConfig{
			Sound:        true,
			Desktop:      true,
			ToneHz:       800,
			ToneDuration: 300 * time.Millisecond,
		},
		Relay: RelayConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			DatabasePath:      filepath.Join(dataDir(), "relay.db"),
			JWTSecret:         "change-me-dev-secret",
			JWTIssuer:         "marketsync-relay",
			JWTTTL:            24 * time.Hour,
			MaxMessageBytes:   1 << 20,
			ActionsPerMinute:  600,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *RelayConfig) UpdateFrom(other RelayConfig) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "marketsync")
	}
	return "."
}
