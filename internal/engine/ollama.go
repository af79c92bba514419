package engine

import (
	"context"
	"io"

	"github.com/kalambet/charbot/internal/ollama"
)

const DefaultOllamaModel = "llama3.2"

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
	model  string
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL, model string) *OllamaEngine {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaEngine{client: ollama.New(baseURL), model: model}
}

func (e *OllamaEngine) Generate(ctx context.Context, prompt string) (string, error) {
	return e.client.Chat(ctx, e.model, []ollama.Message{
		{Role: "user", Content: prompt},
	}, ollama.ChatOptions{})
}

func (e *OllamaEngine) Name() string { return "ollama:" + e.model }

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

// EnsureReady pulls and warms up the configured model.
func (e *OllamaEngine) EnsureReady(ctx context.Context, w io.Writer) error {
	return ollama.EnsureReady(ctx, e.client, e.model, w)
}

// Pull downloads the configured model, showing progress on w.
func (e *OllamaEngine) Pull(ctx context.Context, w io.Writer) error {
	return ollama.Pull(ctx, e.client, e.model, w)
}
