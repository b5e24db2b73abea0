package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "PREPGEN_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.timeout", typ: kString, env: "PREPGEN_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "health.timeout", typ: kString, env: "PREPGEN_HEALTH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Health.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Health.Timeout },
	},
	{
		key: "report.timeout", typ: kString, env: "PREPGEN_REPORT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Report.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Report.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "PREPGEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "render.style", typ: kString, env: "PREPGEN_RENDER_STYLE",
		apply:   func(cfg *Config, v any) { cfg.Render.Style = v.(string) },
		extract: func(cfg Config) any { return cfg.Render.Style },
	},
	{
		key: "render.width", typ: kInt, env: "PREPGEN_RENDER_WIDTH",
		apply:   func(cfg *Config, v any) { cfg.Render.Width = v.(int) },
		extract: func(cfg Config) any { return cfg.Render.Width },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
