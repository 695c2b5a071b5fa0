package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockSecrets is a test double for the secrets store.
type mockSecrets struct {
	values map[string]string
	set    map[string]string
}

func (m *mockSecrets) Get(key string) (string, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func (m *mockSecrets) Set(key, value string) error {
	if m.set == nil {
		m.set = make(map[string]string)
	}
	m.set[key] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return openFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`), &mockSecrets{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Assistant.Model != "gemini-1.5-flash" {
		t.Errorf("Assistant.Model = %q", cfg.Assistant.Model)
	}
	if cfg.Assistant.Timeout != 60*time.Second {
		t.Errorf("Assistant.Timeout = %v", cfg.Assistant.Timeout)
	}
	if cfg.Geocoding.Provider != "nominatim" || cfg.Geocoding.RateLimit != 1 {
		t.Errorf("Geocoding = %+v", cfg.Geocoding)
	}
	if cfg.Wizard.ClimateDelay != 1500*time.Millisecond {
		t.Errorf("Wizard.ClimateDelay = %v", cfg.Wizard.ClimateDelay)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestMissingSecretsUsePlaceholders verifies the service starts without keys.
func TestMissingSecretsUsePlaceholders(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`), &mockSecrets{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range []string{cfg.Assistant.APIKey, cfg.Geocoding.GoogleAPIKey, cfg.Geocoding.MapboxToken} {
		if !IsPlaceholder(v) {
			t.Errorf("secret %q is not a placeholder", v)
		}
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("APIToken = %q, want empty (auth disabled)", cfg.Server.APIToken)
	}
}

// TestFileParsing verifies that fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
		"server.port": 5000,
		"server.allowed_origins": "https://a.example, https://b.example",
		"storage.data_dir": "/tmp/r2r-test",
		"assistant.model": "gemini-pro",
		"assistant.timeout": "15s",
		"geocoding.provider": "mapbox",
		"geocoding.rate_limit": 2.5,
		"wizard.climate_delay": "0s",
		"assistant.api_key": "should-be-ignored"
	}`)

	cfg, err := loadWith(b, &mockSecrets{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Storage.DataDir != "/tmp/r2r-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Assistant.Model != "gemini-pro" || cfg.Assistant.Timeout != 15*time.Second {
		t.Errorf("Assistant = %+v", cfg.Assistant)
	}
	if cfg.Geocoding.Provider != "mapbox" || cfg.Geocoding.RateLimit != 2.5 {
		t.Errorf("Geocoding = %+v", cfg.Geocoding)
	}
	if cfg.Wizard.ClimateDelay != 0 {
		t.Errorf("ClimateDelay = %v, want 0", cfg.Wizard.ClimateDelay)
	}
	if cfg.Assistant.APIKey == "should-be-ignored" {
		t.Error("secret was read from the config file")
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "log.level": "warn"}`)

	t.Setenv("R2R_SERVER_PORT", "6000")
	t.Setenv("R2R_ASSISTANT_API_KEY", "env-key")
	t.Setenv("R2R_WIZARD_CLIMATE_DELAY", "250ms")
	t.Setenv("R2R_GEOCODING_RATE_LIMIT", "not-a-number")

	cfg, err := loadWith(b, &mockSecrets{values: map[string]string{"assistant.api_key": "file-key"}}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Assistant.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.Assistant.APIKey)
	}
	if cfg.Wizard.ClimateDelay != 250*time.Millisecond {
		t.Errorf("ClimateDelay = %v", cfg.Wizard.ClimateDelay)
	}
	if cfg.Geocoding.RateLimit != 1 {
		t.Errorf("RateLimit = %v, want default 1 on parse failure", cfg.Geocoding.RateLimit)
	}
}

// TestSecretsFallback verifies the secrets store is consulted when env is empty.
func TestSecretsFallback(t *testing.T) {
	clearEnv(t)
	sec := &mockSecrets{values: map[string]string{
		"assistant.api_key":      "stored-key",
		"geocoding.mapbox_token": "stored-token",
	}}
	cfg, err := loadWith(writeTempConfig(t, `{}`), sec, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Assistant.APIKey != "stored-key" || cfg.Geocoding.MapboxToken != "stored-token" {
		t.Errorf("secrets = %q / %q", cfg.Assistant.APIKey, cfg.Geocoding.MapboxToken)
	}
	if !IsPlaceholder(cfg.Geocoding.GoogleAPIKey) {
		t.Errorf("GoogleAPIKey = %q, want placeholder", cfg.Geocoding.GoogleAPIKey)
	}
}

// TestDotEnv verifies .env values apply without overriding real environment variables.
func TestDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("R2R_ASSISTANT_MODEL")
	os.Unsetenv("R2R_GEOCODING_PROVIDER")
	t.Cleanup(func() {
		os.Unsetenv("R2R_ASSISTANT_MODEL")
		os.Unsetenv("R2R_GEOCODING_PROVIDER")
	})
	t.Setenv("R2R_LOG_LEVEL", "debug")

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "R2R_ASSISTANT_MODEL=gemini-dotenv\nR2R_GEOCODING_PROVIDER=google\nR2R_LOG_LEVEL=error\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(writeTempConfig(t, `{}`), &mockSecrets{}, envFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Assistant.Model != "gemini-dotenv" || cfg.Geocoding.Provider != "google" {
		t.Errorf("dotenv values not applied: %+v / %+v", cfg.Assistant, cfg.Geocoding)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug from the real environment", cfg.Log.Level)
	}
}

// TestMissingDotEnv verifies an absent .env file is not an error.
func TestMissingDotEnv(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{}`), &mockSecrets{}, filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInvalidPort(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{"server.port": 70000}`), &mockSecrets{}, ""); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestSetKey(t *testing.T) {
	b := openFileBackend(filepath.Join(t.TempDir(), "r2r", "config.json"))
	sec := &mockSecrets{}

	if err := setKeyWith(b, sec, "server.port", "4100"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if v, ok, _ := b.GetInt("server.port"); !ok || v != 4100 {
		t.Errorf("server.port = %d, %v", v, ok)
	}
	if err := setKeyWith(b, sec, "wizard.climate_delay", "2s"); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	if err := setKeyWith(b, sec, "wizard.climate_delay", "soon"); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := setKeyWith(b, sec, "server.port", "abc"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKeyWith(b, sec, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	if err := setKeyWith(b, sec, "assistant.api_key", "sk-123"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if sec.set["assistant.api_key"] != "sk-123" {
		t.Errorf("secret not routed to the secrets store: %v", sec.set)
	}
	if _, ok, _ := b.GetString("assistant.api_key"); ok {
		t.Error("secret written to the config file")
	}

	reopened := openFileBackend(b.path)
	if v, ok, _ := reopened.GetString("wizard.climate_delay"); !ok || v != "2s" {
		t.Errorf("persisted delay = %q, %v", v, ok)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Assistant.APIKey = "sk-secret"
	for _, k := range ShowAll(cfg) {
		if k.Value == "sk-secret" {
			t.Errorf("ShowAll leaked secret under %s", k.Key)
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys = %d, want %d", len(ValidKeys()), len(specs))
	}
}

func TestSecretsFile(t *testing.T) {
	f := secretsFile{path: filepath.Join(t.TempDir(), "r2r", "secrets.json")}
	if _, err := f.Get("assistant.api_key"); err == nil {
		t.Error("expected error for missing file")
	}
	if err := f.Set("assistant.api_key", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.Set("geocoding.mapbox_token", "def"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := f.Get("assistant.api_key"); err != nil || v != "abc" {
		t.Errorf("Get = %q, %v", v, err)
	}
	info, err := os.Stat(f.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}
