package ollama

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// EnsureReady checks that Ollama is running and the chat model is available.
// A missing model is pulled with a progress bar written to w, then warmed up
// so the first chat turn does not pay the cold-load penalty.
// Returns a non-nil error if Ollama is unreachable.
func EnsureReady(ctx context.Context, c *Client, model string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running. Start it with: ollama serve")
	}

	if c.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
	} else {
		if err := Pull(ctx, c, model, w); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "model %s: warming up...\n", model)
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := c.Chat(warmCtx, model, []Message{
		{Role: "user", Content: "ping"},
	}, ChatOptions{NumPredict: 1})
	if err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", model, err)
	} else {
		fmt.Fprintf(w, "model %s: warm\n", model)
	}

	return nil
}

// Pull downloads model and renders the streamed progress as a byte bar on w.
func Pull(ctx context.Context, c *Client, model string, w io.Writer) error {
	fmt.Fprintf(w, "model %s: pulling...\n", model)

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(model),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
	var total int64
	err := c.PullModel(ctx, model, func(p PullProgress) {
		if p.Total > 0 && p.Total != total {
			total = p.Total
			bar.ChangeMax64(total)
		}
		bar.Describe(fmt.Sprintf("%s: %s", model, p.Status))
		if p.Total > 0 {
			_ = bar.Set64(p.Completed)
		}
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
