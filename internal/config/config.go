package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API    APIConfig
	Health HealthConfig
	Report ReportConfig
	Log    LogConfig
	Render RenderConfig
}

type APIConfig struct {
	BaseURL string
	Timeout string
}

type HealthConfig struct {
	Timeout string
}

type ReportConfig struct {
	Timeout string
}

type LogConfig struct {
	Level string
}

type RenderConfig struct {
	Style string
	Width int
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: "120s",
		},
		Health: HealthConfig{
			Timeout: "5s",
		},
		Report: ReportConfig{
			Timeout: "15s",
		},
		Log: LogConfig{
			Level: "info",
		},
		Render: RenderConfig{
			Style: "auto",
			Width: 80,
		},
	}
}

// Load reads configuration from a .env file in the working directory, the
// platform-native backend and environment variables.
//
// On macOS the backend is UserDefaults (domain: com.prepgen.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/prepgen/config.json.
//
// Environment variables (PREPGEN_*) override backend values on all platforms.
// A .env file only fills variables that are not already set.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("invalid api.base_url %q: must be an absolute http(s) URL", cfg.API.BaseURL)
	}

	return cfg, nil
}

// RequestTimeout is the per-request timeout for authenticated API calls.
func (c APIConfig) RequestTimeout() time.Duration {
	return parseDuration("api.timeout", c.Timeout, 120*time.Second)
}

// ProbeTimeout bounds a single liveness probe.
func (c HealthConfig) ProbeTimeout() time.Duration {
	return parseDuration("health.timeout", c.Timeout, 5*time.Second)
}

// SubmitTimeout bounds a background quiz result submission.
func (c ReportConfig) SubmitTimeout() time.Duration {
	return parseDuration("report.timeout", c.Timeout, 15*time.Second)
}

// SlogLevel maps the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(key, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}
