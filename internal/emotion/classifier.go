package emotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// ErrUnrecognized is the fallback reason when the provider reply is not a label.
var ErrUnrecognized = errors.New("unrecognized emotion label")

// Generator is the text-generation capability the classifier needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Classification is the result of Classify. Label is always set; Fallback is
// non-nil when Label is Neutral because the provider failed or replied with
// something outside the closed set.
type Classification struct {
	Label    Label
	Fallback error
}

// Classifier predicts the character's emotion for a user message.
type Classifier struct {
	gen     Generator
	timeout time.Duration
}

// NewClassifier creates a Classifier. A timeout <= 0 uses 15s.
func NewClassifier(gen Generator, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Classifier{gen: gen, timeout: timeout}
}

// Classify never fails: provider errors, timeouts and unparseable replies
// all yield Neutral with the reason recorded in Fallback.
func (c *Classifier) Classify(ctx context.Context, message string) Classification {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.gen.Generate(ctx, BuildPrompt(message))
	if err != nil {
		slog.Warn("emotion classification failed", "error", err)
		return Classification{Label: Neutral, Fallback: fmt.Errorf("classifying emotion: %w", err)}
	}

	reply := strings.TrimSpace(raw)
	label, ok := Parse(reply)
	if !ok {
		slog.Warn("emotion classifier returned unknown label", "reply", reply)
		return Classification{Label: Neutral, Fallback: fmt.Errorf("%w: %q", ErrUnrecognized, reply)}
	}
	return Classification{Label: label}
}
