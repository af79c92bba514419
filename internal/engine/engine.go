package engine

import (
	"context"
	"errors"
)

// ErrRateLimited is returned when the provider answers HTTP 429.
var ErrRateLimited = errors.New("rate limited")

// Engine is the text-generation capability every component depends on:
// a single prompt in, a single completion out. Implementations wrap a hosted
// OpenAI-compatible API or a local Ollama server.
type Engine interface {
	// Generate sends prompt as a single user message and returns the reply text.
	Generate(ctx context.Context, prompt string) (string, error)

	// Name identifies the backend and model, e.g. "openai:gpt-4o-mini".
	Name() string

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool
}
