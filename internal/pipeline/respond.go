package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/composer"
	"github.com/kalambet/charbot/internal/emotion"
	"github.com/kalambet/charbot/internal/profile"
)

const defaultGenerateTimeout = 60 * time.Second

var (
	// ErrGeneration matches every *GenerationError via errors.Is.
	ErrGeneration = errors.New("generation failed")
	// ErrInvalidRequest is returned before any provider call when the
	// request cannot produce a prompt.
	ErrInvalidRequest = errors.New("invalid request")
)

// Generator is the text-generation capability used for the final reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationError reports a failed final provider call. Reply holds the
// state computed before the call (emotion, affinity, history) so callers can
// persist it and surface it to the user.
type GenerationError struct {
	Reply Reply
	Err   error
}

func (e *GenerationError) Error() string { return "generating reply: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// Request is one user turn.
type Request struct {
	Character profile.Character
	Message   string
	Affinity  int
	History   []affinity.Entry
}

// Metadata captures diagnostic information about a turn.
type Metadata struct {
	Outcome            affinity.Outcome
	Damped             bool
	ClassifierFellBack bool
	AdjustmentFellBack bool
	PromptTokens       int
	ResponseDurationMs int64
}

// Reply is the outcome of a turn. Text is empty when generation failed.
type Reply struct {
	Text        string
	Emotion     emotion.Label
	Affinity    int
	AddressTerm affinity.AddressTerm
	History     []affinity.Entry
	Meta        Metadata
}

// Responder orchestrates a chat turn: emotion classification, affinity
// adjustment, address-term resolution, prompt composition and generation.
type Responder struct {
	classifier *emotion.Classifier
	policy     affinity.Policy
	composer   *composer.Composer
	gen        Generator
	timeout    time.Duration
}

// NewResponder creates a Responder wired to all pipeline components.
// generateTimeout bounds the final provider call (default 60s if <= 0).
func NewResponder(
	classifier *emotion.Classifier,
	policy affinity.Policy,
	comp *composer.Composer,
	gen Generator,
	generateTimeout time.Duration,
) *Responder {
	if generateTimeout <= 0 {
		generateTimeout = defaultGenerateTimeout
	}
	return &Responder{
		classifier: classifier,
		policy:     policy,
		composer:   comp,
		gen:        gen,
		timeout:    generateTimeout,
	}
}

// Respond runs one turn:
//  1. Classify the message's emotion (Neutral on failure)
//  2. Adjust affinity with the configured policy, appending the turn to history
//  3. Resolve the address term from the updated score
//  4. Compose the in-character prompt
//  5. Generate the reply
//
// Steps 1 and 2 degrade gracefully. A failure in step 5 returns the computed
// Reply together with a *GenerationError.
func (r *Responder) Respond(ctx context.Context, req Request) (reply Reply, err error) {
	start := time.Now()
	defer func() {
		reply.Meta.ResponseDurationMs = time.Since(start).Milliseconds()
	}()

	if strings.TrimSpace(req.Message) == "" {
		return Reply{}, errors.Join(ErrInvalidRequest, errors.New("message is empty"))
	}
	if strings.TrimSpace(req.Character.Name) == "" {
		return Reply{}, errors.Join(ErrInvalidRequest, errors.New("character name is empty"))
	}

	// 1. Classify.
	cls := r.classifier.Classify(ctx, req.Message)
	reply.Emotion = cls.Label
	reply.Meta.ClassifierFellBack = cls.Fallback != nil

	// 2. Adjust.
	adj := r.policy.Adjust(ctx, affinity.Input{
		Message: req.Message,
		Score:   req.Affinity,
		History: req.History,
		Emotion: cls.Label,
	})
	reply.Affinity = adj.Score
	reply.History = adj.History
	reply.Meta.Outcome = adj.Outcome
	reply.Meta.Damped = adj.Damped
	reply.Meta.AdjustmentFellBack = adj.Fallback != nil

	// 3. Resolve on the updated score.
	reply.AddressTerm = affinity.ResolveAddressTerm(adj.Score)

	// 4. Compose. History excludes the current turn; the message is
	// rendered separately.
	prompt := r.composer.Compose(composer.Input{
		Character: req.Character,
		Message:   req.Message,
		Affinity:  adj.Score,
		Emotion:   cls.Label,
		Address:   reply.AddressTerm,
		History:   req.History,
	})
	reply.Meta.PromptTokens = composer.EstimateTokens(prompt)

	// 5. Generate.
	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	text, genErr := r.gen.Generate(genCtx, prompt)
	if genErr != nil {
		slog.Warn("reply generation failed",
			"character", req.Character.Name,
			"emotion", reply.Emotion,
			"affinity", reply.Affinity,
			"error", genErr,
		)
		return reply, &GenerationError{Reply: reply, Err: genErr}
	}
	reply.Text = strings.TrimSpace(text)

	slog.Debug("turn complete",
		"character", req.Character.Name,
		"emotion", reply.Emotion,
		"outcome", reply.Meta.Outcome,
		"affinity_before", affinity.Clamp(req.Affinity),
		"affinity_after", reply.Affinity,
		"prompt_tokens", reply.Meta.PromptTokens,
	)
	return reply, nil
}
