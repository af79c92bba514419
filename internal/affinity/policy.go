package affinity

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/charbot/internal/emotion"
)

// Policy names accepted by NewPolicy.
const (
	PolicyTrend   = "trend"
	PolicyKeyword = "keyword"
)

// Generator is the text-generation capability policies may call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Input is one turn to score.
type Input struct {
	Message string
	Score   int
	History []Entry
	Emotion emotion.Label
}

// Result carries the new score and the history with the current turn
// appended. Fallback is non-nil when the outcome defaulted to Neutral
// because of a provider failure or an unparseable reply.
type Result struct {
	Score    int
	History  []Entry
	Outcome  Outcome
	Damped   bool
	Fallback error
}

// Policy adjusts affinity for a single turn. Implementations never fail;
// degraded paths are reported through Result.Fallback.
type Policy interface {
	Name() string
	Adjust(ctx context.Context, in Input) Result
}

// NewPolicy returns the policy registered under name. gen and timeout are
// only used by policies that call the provider.
func NewPolicy(name string, gen Generator, timeout time.Duration) (Policy, error) {
	switch name {
	case PolicyTrend, "":
		if gen == nil {
			return nil, fmt.Errorf("policy %q requires a generator", PolicyTrend)
		}
		return NewTrendPolicy(gen, timeout), nil
	case PolicyKeyword:
		return NewKeywordPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown affinity policy %q: must be one of %s, %s", name, PolicyTrend, PolicyKeyword)
	}
}
