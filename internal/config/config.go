package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Assistant AssistantConfig
	Geocoding GeocodingConfig
	Wizard    WizardConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	APIToken       string
	AllowedOrigins []string
}

type StorageConfig struct {
	DataDir string
}

type AssistantConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type GeocodingConfig struct {
	Provider     string
	RateLimit    float64
	UserAgent    string
	GoogleAPIKey string
	MapboxToken  string
}

type WizardConfig struct {
	ClimateDelay time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4000,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Assistant: AssistantConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-1.5-flash",
			Timeout: 60 * time.Second,
		},
		Geocoding: GeocodingConfig{
			Provider:  "nominatim",
			RateLimit: 1,
			UserAgent: "r2r/1.0 (rain2recharge)",
		},
		Wizard: WizardConfig{
			ClimateDelay: 1500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DotEnvFile is read from the working directory by Load.
const DotEnvFile = ".env"

// Load reads configuration from, in increasing priority: defaults, the JSON
// file at $XDG_CONFIG_HOME/r2r/config.json, a .env file in the working
// directory and R2R_* environment variables.
//
// Secrets are never read from the config file. They come from the
// environment or $XDG_DATA_HOME/r2r/secrets.json; a secret found nowhere is
// replaced by a placeholder so the service still starts and requests to the
// provider fail authentication instead.
func Load() (Config, error) {
	return loadWith(newFileBackend(), newSecretsFile(), DotEnvFile)
}

// secretReader abstracts the secrets store for testing.
type secretReader interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretReader, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not load %s: %v\n", envFile, err)
		}
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(&cfg, v)
			continue
		}
		if s.placeholder != "" {
			s.apply(&cfg, s.placeholder)
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	return cfg, nil
}

// IsPlaceholder reports whether v is one of the placeholder secrets.
func IsPlaceholder(v string) bool {
	for _, s := range specs {
		if s.placeholder != "" && s.placeholder == v {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
