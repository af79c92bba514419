package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	oneOf   []string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CHARBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cors_origins", typ: kList, env: "CHARBOT_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.CORSOrigins, ",") },
	},
	{
		key: "provider.kind", typ: kString, env: "CHARBOT_PROVIDER_KIND",
		oneOf:   []string{"openai", "ollama"},
		apply:   func(cfg *Config, v any) { cfg.Provider.Kind = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Kind },
	},
	{
		key: "provider.model", typ: kString, env: "CHARBOT_PROVIDER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Model },
	},
	{
		key: "provider.base_url", typ: kString, env: "CHARBOT_PROVIDER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Provider.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.BaseURL },
	},
	{
		key: "provider.api_key", typ: kString, env: "CHARBOT_PROVIDER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Provider.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "CHARBOT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "CHARBOT_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "engine.affinity_policy", typ: kString, env: "CHARBOT_ENGINE_AFFINITY_POLICY",
		oneOf:   []string{"trend", "keyword"},
		apply:   func(cfg *Config, v any) { cfg.Engine.AffinityPolicy = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.AffinityPolicy },
	},
	{
		key: "engine.classify_timeout", typ: kDuration, env: "CHARBOT_ENGINE_CLASSIFY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Engine.ClassifyTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Engine.ClassifyTimeout },
	},
	{
		key: "engine.generate_timeout", typ: kDuration, env: "CHARBOT_ENGINE_GENERATE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Engine.GenerateTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Engine.GenerateTimeout },
	},
	{
		key: "engine.max_retries", typ: kInt, env: "CHARBOT_ENGINE_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Engine.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.MaxRetries },
	},
	{
		key: "engine.initial_affinity", typ: kInt, env: "CHARBOT_ENGINE_INITIAL_AFFINITY",
		apply:   func(cfg *Config, v any) { cfg.Engine.InitialAffinity = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.InitialAffinity },
	},
	{
		key: "engine.history_tokens", typ: kInt, env: "CHARBOT_ENGINE_HISTORY_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Engine.HistoryTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.HistoryTokens },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CHARBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "session.backend", typ: kString, env: "CHARBOT_SESSION_BACKEND",
		oneOf:   []string{"memory", "sqlite", "redis"},
		apply:   func(cfg *Config, v any) { cfg.Session.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.Backend },
	},
	{
		key: "session.redis_addr", typ: kString, env: "CHARBOT_SESSION_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Session.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.RedisAddr },
	},
	{
		key: "session.ttl", typ: kDuration, env: "CHARBOT_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.TTL },
	},
	{
		key: "log.level", typ: kString, env: "CHARBOT_LOG_LEVEL",
		oneOf:   []string{"debug", "info", "warn", "error"},
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

// applySource copies every known key present in k into cfg. Secrets are only
// honoured when allowSecrets is set. Unparseable values are reported and the
// previous value is kept.
func applySource(cfg *Config, k *koanf.Koanf, source string, allowSecrets bool) {
	for _, s := range specs {
		if !k.Exists(s.key) {
			continue
		}
		if s.secret && !allowSecrets {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring secret %s in %s; set %s instead.\n", s.key, source, s.env)
			continue
		}
		v, err := parseValue(s, k.Get(s.key))
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from %s: %v. Using default value.\n", s.key, source, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// parseValue converts a raw value from YAML (typed) or the environment
// (always a string) into the Go type the key expects.
func parseValue(s keySpec, raw any) (any, error) {
	switch s.typ {
	case kString:
		v := fmt.Sprintf("%v", raw)
		if len(s.oneOf) > 0 && !contains(s.oneOf, v) {
			return nil, fmt.Errorf("invalid value %q: must be one of %s", v, strings.Join(s.oneOf, ", "))
		}
		return v, nil
	case kInt:
		switch n := raw.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("value %v is not an integer", n)
			}
			return int(n), nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(fmt.Sprintf("%v", raw)))
		if err != nil {
			return nil, fmt.Errorf("invalid integer: %w", err)
		}
		return i, nil
	case kDuration:
		d, err := time.ParseDuration(strings.TrimSpace(fmt.Sprintf("%v", raw)))
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid duration %s: must not be negative", d)
		}
		return d, nil
	case kList:
		switch l := raw.(type) {
		case []any:
			out := make([]string, 0, len(l))
			for _, item := range l {
				out = append(out, fmt.Sprintf("%v", item))
			}
			return out, nil
		case []string:
			return l, nil
		}
		return splitList(fmt.Sprintf("%v", raw)), nil
	}
	return nil, fmt.Errorf("unsupported key type for %s", s.key)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
