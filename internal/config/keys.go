package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key         string
	typ         keyType
	env         string
	secret      bool
	placeholder string
	apply       func(cfg *Config, v any)
	extract     func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "R2R_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "R2R_SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "R2R_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = splitList(v.(string)) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.AllowedOrigins, ",") },
	},
	{
		key: "storage.data_dir", typ: kString, env: "R2R_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "assistant.api_key", typ: kString, env: "R2R_ASSISTANT_API_KEY",
		secret: true, placeholder: "your-gemini-api-key",
		apply:   func(cfg *Config, v any) { cfg.Assistant.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.APIKey },
	},
	{
		key: "assistant.base_url", typ: kString, env: "R2R_ASSISTANT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.BaseURL },
	},
	{
		key: "assistant.model", typ: kString, env: "R2R_ASSISTANT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.Model },
	},
	{
		key: "assistant.timeout", typ: kDuration, env: "R2R_ASSISTANT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Assistant.Timeout },
	},
	{
		key: "geocoding.provider", typ: kString, env: "R2R_GEOCODING_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Geocoding.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocoding.Provider },
	},
	{
		key: "geocoding.rate_limit", typ: kFloat, env: "R2R_GEOCODING_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Geocoding.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Geocoding.RateLimit },
	},
	{
		key: "geocoding.user_agent", typ: kString, env: "R2R_GEOCODING_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Geocoding.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocoding.UserAgent },
	},
	{
		key: "geocoding.google_api_key", typ: kString, env: "R2R_GEOCODING_GOOGLE_API_KEY",
		secret: true, placeholder: "your-google-maps-api-key",
		apply:   func(cfg *Config, v any) { cfg.Geocoding.GoogleAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocoding.GoogleAPIKey },
	},
	{
		key: "geocoding.mapbox_token", typ: kString, env: "R2R_GEOCODING_MAPBOX_TOKEN",
		secret: true, placeholder: "your-mapbox-token",
		apply:   func(cfg *Config, v any) { cfg.Geocoding.MapboxToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocoding.MapboxToken },
	},
	{
		key: "wizard.climate_delay", typ: kDuration, env: "R2R_WIZARD_CLIMATE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Wizard.ClimateDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Wizard.ClimateDelay },
	},
	{
		key: "log.level", typ: kString, env: "R2R_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type of s.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
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
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
