package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CHARBOT_"

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Ollama   OllamaConfig
	Engine   EngineConfig
	Storage  StorageConfig
	Session  SessionConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

type ProviderConfig struct {
	Kind    string
	Model   string
	BaseURL string
	APIKey  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type EngineConfig struct {
	AffinityPolicy  string
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
	MaxRetries      int
	InitialAffinity int
	HistoryTokens   int
}

type StorageConfig struct {
	DataDir string
}

type SessionConfig struct {
	Backend   string
	RedisAddr string
	TTL       time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Provider: ProviderConfig{
			Kind:  "openai",
			Model: "gpt-4o-mini",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Engine: EngineConfig{
			AffinityPolicy:  "trend",
			ClassifyTimeout: 15 * time.Second,
			GenerateTimeout: 60 * time.Second,
			MaxRetries:      3,
			InitialAffinity: 0,
			HistoryTokens:   1500,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Session: SessionConfig{
			Backend:   "sqlite",
			RedisAddr: "localhost:6379",
			TTL:       24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing precedence: built-in defaults, the
// YAML file at $XDG_CONFIG_HOME/charbot/config.yaml, then CHARBOT_*
// environment variables. A .env file in the working directory is loaded
// into the environment first. Secrets are only read from the environment;
// OPENAI_API_KEY is accepted when CHARBOT_PROVIDER_API_KEY is unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadFromPath(FilePath())
}

func loadFromPath(path string) (Config, error) {
	cfg := defaults()

	fileKeys := koanf.New(".")
	if _, err := os.Stat(path); err == nil {
		if err := fileKeys.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("accessing config %s: %w", path, err)
	}
	applySource(&cfg, fileKeys, "config file", false)

	envKeys := koanf.New(".")
	if err := envKeys.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return Config{}, fmt.Errorf("loading env overrides: %w", err)
	}
	applySource(&cfg, envKeys, "environment", true)

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider.Kind {
	case "openai":
		if c.Provider.APIKey == "" && c.Provider.BaseURL == "" {
			errs = append(errs, fmt.Errorf("missing required config: provider API key. "+
				"Set it via environment variable %sPROVIDER_API_KEY or OPENAI_API_KEY", envPrefix))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("invalid provider.kind %q: must be one of openai, ollama", c.Provider.Kind))
	}
	switch c.Engine.AffinityPolicy {
	case "trend", "keyword":
	default:
		errs = append(errs, fmt.Errorf("invalid engine.affinity_policy %q: must be one of trend, keyword", c.Engine.AffinityPolicy))
	}
	switch c.Session.Backend {
	case "memory", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Errorf("invalid session.backend %q: must be one of memory, sqlite, redis", c.Session.Backend))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, fmt.Errorf("invalid session.ttl %s: must be 0 (keep forever) or positive", c.Session.TTL))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// FilePath returns the YAML config location.
func FilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "charbot", "config.yaml")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "charbot-data"
		}
	}
	return filepath.Join(dir, "charbot")
}

// envToKey maps CHARBOT_SERVER_PORT to server.port using the key table.
// Unknown variables map to "" and are ignored by the env provider.
func envToKey(name string) string {
	for _, s := range specs {
		if s.env == name {
			return s.key
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
