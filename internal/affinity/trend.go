package affinity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/charbot/internal/emotion"
)

const (
	defaultOutcomeTimeout = 15 * time.Second

	// DefaultWindow is how many recent entries feed the damping rule.
	DefaultWindow = 5
	// DefaultDampingThreshold is the count an outcome label must exceed
	// inside the window for the score to freeze.
	DefaultDampingThreshold = 5

	increaseStep  = 5
	decreaseStep  = 5
	streakBonus   = 10
	streakMinimum = 2
)

// ErrUnrecognizedOutcome is the fallback reason when the provider reply is
// not one of Increase, Decrease or Neutral.
var ErrUnrecognizedOutcome = errors.New("unrecognized affinity outcome")

const outcomeTemplate = `Analyze the following user message and determine how it would affect the character's favorability score towards the user.

The conversation history is:
%s

User Message: %s

Provide only one of the following words: Increase, Decrease, or Neutral.`

// TrendPolicy asks the provider for the direction of each message and
// weighs it against the recent emotion trend.
type TrendPolicy struct {
	gen     Generator
	timeout time.Duration

	Window           int
	DampingThreshold int

	now func() time.Time
}

// NewTrendPolicy creates a TrendPolicy. A timeout <= 0 uses 15s.
func NewTrendPolicy(gen Generator, timeout time.Duration) *TrendPolicy {
	if timeout <= 0 {
		timeout = defaultOutcomeTimeout
	}
	return &TrendPolicy{
		gen:              gen,
		timeout:          timeout,
		Window:           DefaultWindow,
		DampingThreshold: DefaultDampingThreshold,
		now:              time.Now,
	}
}

func (p *TrendPolicy) Name() string { return PolicyTrend }

// Adjust scores one turn:
//  1. append the turn to history
//  2. ask the provider for the outcome given the appended history
//  3. freeze the score if the outcome label is over-represented in the
//     recent window
//  4. apply +5 (+10 on an Increase streak) or -5, then clamp
//
// The outcome label is compared against emotion tags in steps 3 and 4.
// The two label sets differ; the comparison is kept as-is.
func (p *TrendPolicy) Adjust(ctx context.Context, in Input) Result {
	history := appendEntry(in.History, Entry{
		Message:   in.Message,
		Emotion:   in.Emotion,
		Timestamp: p.now(),
	})
	res := Result{
		Score:   Clamp(in.Score),
		History: history,
		Outcome: Steady,
	}

	outcome, err := p.outcome(ctx, in.Message, history)
	if err != nil {
		slog.Warn("affinity outcome unavailable, leaving score unchanged", "error", err)
		res.Fallback = err
		return res
	}
	res.Outcome = outcome
	slog.Info("affinity outcome", "outcome", outcome)

	counts := countEmotions(recentWindow(history, p.Window))
	if counts[emotion.Label(outcome)] > p.DampingThreshold {
		slog.Info("affinity unchanged, outcome too frequent in recent window",
			"outcome", outcome, "count", counts[emotion.Label(outcome)])
		res.Damped = true
		return res
	}

	delta := 0
	switch outcome {
	case Increase:
		delta = increaseStep
		prior := history[:len(history)-1]
		if countTagged(prior, string(Increase)) >= streakMinimum {
			delta += streakBonus
		}
	case Decrease:
		delta = -decreaseStep
	}

	res.Score = Clamp(res.Score + delta)
	slog.Debug("affinity adjusted", "from", in.Score, "to", res.Score, "delta", delta)
	return res
}

func (p *TrendPolicy) outcome(ctx context.Context, message string, history []Entry) (Outcome, error) {
	historyJSON, err := json.MarshalIndent(history, "", "    ")
	if err != nil {
		return Steady, fmt.Errorf("encoding history: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.gen.Generate(ctx, fmt.Sprintf(outcomeTemplate, historyJSON, message))
	if err != nil {
		return Steady, fmt.Errorf("classifying outcome: %w", err)
	}

	reply := strings.TrimSpace(raw)
	outcome, ok := ParseOutcome(reply)
	if !ok {
		return Steady, fmt.Errorf("%w: %q", ErrUnrecognizedOutcome, reply)
	}
	return outcome, nil
}
