package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "MARKETSYNC"
	envConfigDefaultPath = "MARKETSYNC_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so that AutomaticEnv can override nested values.
func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"log_level":  cfg.LogLevel,
		"log_format": cfg.LogFormat,

		"realtime.url":                cfg.Realtime.URL,
		"realtime.reconnect_attempts": cfg.Realtime.ReconnectAttempts,
		"realtime.reconnect_delay":    cfg.Realtime.ReconnectDelay,
		"realtime.connect_timeout":    cfg.Realtime.ConnectTimeout,
		"realtime.read_limit":         cfg.Realtime.ReadLimit,

		"api.base_url":         cfg.API.BaseURL,
		"api.timeout":          cfg.API.Timeout,
		"api.breaker_failures": cfg.API.BreakerFailures,
		"api.breaker_cooldown": cfg.API.BreakerCooldown,

		"session.path": cfg.Session.Path,

		"alerts.sound":         cfg.Alerts.Sound,
		"alerts.desktop":       cfg.Alerts.Desktop,
		"alerts.tone_hz":       cfg.Alerts.ToneHz,
		"alerts.tone_duration": cfg.Alerts.ToneDuration,

		"relay.addr":                cfg.Relay.Addr,
		"relay.read_header_timeout": cfg.Relay.ReadHeaderTimeout,
		"relay.shutdown_timeout":    cfg.Relay.ShutdownTimeout,
		"relay.database_path":       cfg.Relay.DatabasePath,
		"relay.jwt_secret":          cfg.Relay.JWTSecret,
		"relay.jwt_issuer":          cfg.Relay.JWTIssuer,
		"relay.jwt_audience":        cfg.Relay.JWTAudience,
		"relay.jwt_ttl":             cfg.Relay.JWTTTL,
		"relay.max_message_bytes":   cfg.Relay.MaxMessageBytes,
		"relay.actions_per_minute":  cfg.Relay.ActionsPerMinute,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	if dir := dataDir(); dir != "." {
		return filepath.Join(dir, defaultConfigName)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
