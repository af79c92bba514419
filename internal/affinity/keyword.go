package affinity

import (
	"context"
	"strings"
	"time"
)

const keywordStep = 10

var (
	// Negative tokens are matched first: "dislike" contains "like".
	negativeKeywords = []string{"싫어", "실망", "헤어지", "이별", "dislike", "disappointed", "breakup", "break up", "hate"}
	positiveKeywords = []string{"고마워", "고맙", "감사", "좋아", "사랑", "thank", "like", "love"}
)

// KeywordPolicy scores a message by literal token presence. It never calls
// the provider and ignores history when scoring.
type KeywordPolicy struct {
	now func() time.Time
}

func NewKeywordPolicy() *KeywordPolicy {
	return &KeywordPolicy{now: time.Now}
}

func (p *KeywordPolicy) Name() string { return PolicyKeyword }

func (p *KeywordPolicy) Adjust(_ context.Context, in Input) Result {
	history := appendEntry(in.History, Entry{
		Message:   in.Message,
		Emotion:   in.Emotion,
		Timestamp: p.now(),
	})

	outcome := keywordOutcome(in.Message)
	delta := 0
	switch outcome {
	case Increase:
		delta = keywordStep
	case Decrease:
		delta = -keywordStep
	}

	return Result{
		Score:   Clamp(in.Score + delta),
		History: history,
		Outcome: outcome,
	}
}

func keywordOutcome(message string) Outcome {
	lower := strings.ToLower(message)
	if containsAny(lower, negativeKeywords) {
		return Decrease
	}
	if containsAny(lower, positiveKeywords) {
		return Increase
	}
	return Steady
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
