package engine

import (
	"context"
	"fmt"
	"io"
)

const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
)

// Config selects and configures the generation backend.
type Config struct {
	Kind          string
	Model         string
	BaseURL       string
	APIKey        string
	OllamaBaseURL string
	OllamaModel   string
	MaxRetries    int
}

// New builds the configured engine wrapped with rate-limit retries.
func New(cfg Config) (Engine, error) {
	var e Engine
	switch cfg.Kind {
	case KindOpenAI, "":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider.api_key is required for the openai provider")
		}
		e = NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case KindOllama:
		e = NewOllamaEngine(cfg.OllamaBaseURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown provider kind %q (want %s or %s)", cfg.Kind, KindOpenAI, KindOllama)
	}
	return WithRetry(e, cfg.MaxRetries), nil
}

// EnsureReady prepares local backends before serving. Hosted backends are
// only probed; an unreachable one is reported but does not block start-up.
func EnsureReady(ctx context.Context, e Engine, w io.Writer) error {
	if r, ok := e.(*retrying); ok {
		e = r.Engine
	}
	if o, ok := e.(*OllamaEngine); ok {
		return o.EnsureReady(ctx, w)
	}
	if !e.IsRunning(ctx) {
		fmt.Fprintf(w, "engine %s: not reachable, requests will fail until it is\n", e.Name())
		return nil
	}
	fmt.Fprintf(w, "engine %s: ready\n", e.Name())
	return nil
}

// Pull downloads the model of a local backend. Hosted backends have nothing
// to pull.
func Pull(ctx context.Context, e Engine, w io.Writer) error {
	if r, ok := e.(*retrying); ok {
		e = r.Engine
	}
	o, ok := e.(*OllamaEngine)
	if !ok {
		return fmt.Errorf("engine %s does not support pulling models", e.Name())
	}
	return o.Pull(ctx, w)
}
