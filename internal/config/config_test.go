package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		os.Unsetenv(s.env)
	}
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("Server.CORSOrigins = %v, want [*]", cfg.Server.CORSOrigins)
	}
	if cfg.Provider.Kind != "openai" || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("Provider = %+v", cfg.Provider)
	}
	if cfg.Engine.AffinityPolicy != "trend" {
		t.Errorf("Engine.AffinityPolicy = %q, want trend", cfg.Engine.AffinityPolicy)
	}
	if cfg.Engine.ClassifyTimeout != 15*time.Second {
		t.Errorf("Engine.ClassifyTimeout = %v, want 15s", cfg.Engine.ClassifyTimeout)
	}
	if cfg.Engine.InitialAffinity != 0 {
		t.Errorf("Engine.InitialAffinity = %d, want 0", cfg.Engine.InitialAffinity)
	}
	if cfg.Session.Backend != "sqlite" || cfg.Session.TTL != 24*time.Hour {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestYAMLParsing(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
server:
  port: 9000
  cors_origins:
    - https://app.example.com
    - http://localhost:3000
provider:
  kind: ollama
ollama:
  model: qwen2.5
engine:
  affinity_policy: keyword
  generate_timeout: 2m
  initial_affinity: 20
session:
  backend: redis
  redis_addr: redis:6379
`)

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://localhost:3000" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Provider.Kind != "ollama" || cfg.Ollama.Model != "qwen2.5" {
		t.Errorf("provider = %+v ollama = %+v", cfg.Provider, cfg.Ollama)
	}
	if cfg.Engine.AffinityPolicy != "keyword" || cfg.Engine.GenerateTimeout != 2*time.Minute || cfg.Engine.InitialAffinity != 20 {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Session.Backend != "redis" || cfg.Session.RedisAddr != "redis:6379" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	// Untouched keys keep defaults.
	if cfg.Engine.ClassifyTimeout != 15*time.Second {
		t.Errorf("Engine.ClassifyTimeout = %v, want default", cfg.Engine.ClassifyTimeout)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "server:\n  port: 9000\n")
	t.Setenv("CHARBOT_SERVER_PORT", "9100")
	t.Setenv("CHARBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CHARBOT_SESSION_TTL", "30m")
	t.Setenv("CHARBOT_PROVIDER_API_KEY", "sk-env")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 (env wins over file)", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("Session.TTL = %v, want 30m", cfg.Session.TTL)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("Provider.APIKey = %q, want sk-env", cfg.Provider.APIKey)
	}
}

func TestOpenAIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-openai" {
		t.Errorf("Provider.APIKey = %q, want sk-openai", cfg.Provider.APIKey)
	}
}

func TestSecretIgnoredInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "provider:\n  api_key: sk-file\n")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "" {
		t.Errorf("Provider.APIKey = %q, secrets must come from the environment", cfg.Provider.APIKey)
	}
}

func TestInvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "engine:\n  affinity_policy: random\n  classify_timeout: soon\n")
	t.Setenv("CHARBOT_SERVER_PORT", "eighty")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.AffinityPolicy != "trend" || cfg.Engine.ClassifyTimeout != 15*time.Second || cfg.Server.Port != 8000 {
		t.Errorf("invalid values should keep defaults, got %+v %+v", cfg.Engine, cfg.Server)
	}
}

func TestMalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "server: [unclosed\n")
	if _, err := loadFromPath(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "API key") {
		t.Errorf("expected missing API key error, got %v", err)
	}

	cfg.Provider.APIKey = "sk"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Provider.Kind = "ollama"
	cfg.Provider.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("ollama needs no key: %v", err)
	}

	cfg.Session.Backend = "etcd"
	cfg.Server.Port = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "session.backend") || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("expected both errors, got %v", err)
	}
}

func TestValidate_SessionTTL(t *testing.T) {
	cfg := defaults()
	cfg.Provider.APIKey = "sk"

	cfg.Session.TTL = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero ttl keeps sessions forever and should be valid: %v", err)
	}

	cfg.Session.TTL = -time.Hour
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "session.ttl") {
		t.Errorf("expected session.ttl error, got %v", err)
	}
}

func TestSetKey_WritesYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "charbot", "config.yaml")

	if err := setKeyAt(path, "server.port", "9300"); err != nil {
		t.Fatalf("setKeyAt: %v", err)
	}
	if err := setKeyAt(path, "session.ttl", "90m"); err != nil {
		t.Fatalf("setKeyAt: %v", err)
	}
	if err := setKeyAt(path, "server.cors_origins", "https://a.example,https://b.example"); err != nil {
		t.Fatalf("setKeyAt: %v", err)
	}

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("loadFromPath: %v", err)
	}
	if cfg.Server.Port != 9300 {
		t.Errorf("Server.Port = %d, want 9300", cfg.Server.Port)
	}
	if cfg.Session.TTL != 90*time.Minute {
		t.Errorf("Session.TTL = %v, want 1h30m", cfg.Session.TTL)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "port: 9300") {
		t.Errorf("file content:\n%s", data)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	tests := []struct {
		key, value string
	}{
		{"nope.key", "x"},
		{"provider.api_key", "sk"},
		{"server.port", "abc"},
		{"engine.affinity_policy", "random"},
		{"session.ttl", "forever"},
		{"session.ttl", "-1h"},
	}
	for _, tt := range tests {
		if err := setKeyAt(path, tt.key, tt.value); err == nil {
			t.Errorf("setKeyAt(%q, %q) succeeded, want error", tt.key, tt.value)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected writes should not create the file")
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Provider.APIKey = "sk-secret"
	for _, info := range ShowAll(cfg) {
		if info.Key == "provider.api_key" || info.Value == "sk-secret" {
			t.Errorf("secret leaked: %+v", info)
		}
	}
	keys := ValidKeys()
	if len(keys) != len(specs)-1 {
		t.Errorf("ValidKeys() = %d keys, want %d", len(keys), len(specs)-1)
	}
}

func TestEnvToKey(t *testing.T) {
	if got := envToKey("CHARBOT_ENGINE_MAX_RETRIES"); got != "engine.max_retries" {
		t.Errorf("envToKey = %q", got)
	}
	if got := envToKey("CHARBOT_UNKNOWN"); got != "" {
		t.Errorf("envToKey(unknown) = %q, want empty", got)
	}
}
