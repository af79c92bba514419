package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/composer"
	"github.com/kalambet/charbot/internal/emotion"
	"github.com/kalambet/charbot/internal/profile"
)

// scriptedGenerator answers each kind of prompt with a canned reply and
// records the order of calls.
type scriptedGenerator struct {
	mu sync.Mutex

	emotion  string
	outcome  string
	reply    string
	replyErr error

	calls   []string
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	switch {
	case strings.Contains(prompt, "Provide only the predicted emotion."):
		g.calls = append(g.calls, "classify")
		return g.emotion, nil
	case strings.Contains(prompt, "Increase, Decrease, or Neutral"):
		g.calls = append(g.calls, "adjust")
		return g.outcome, nil
	default:
		g.calls = append(g.calls, "generate")
		return g.reply, g.replyErr
	}
}

func (g *scriptedGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

func newTestResponder(t *testing.T, g *scriptedGenerator, policyName string) *Responder {
	t.Helper()
	policy, err := affinity.NewPolicy(policyName, g, time.Second)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return NewResponder(emotion.NewClassifier(g, time.Second), policy, composer.New(0), g, time.Second)
}

var luna = profile.Character{Name: "Luna", Personality: "shy", SpeechStyle: "polite"}

func TestRespond_OrderAndResult(t *testing.T) {
	g := &scriptedGenerator{emotion: "Happy", outcome: "Increase", reply: "  고마워요!  "}
	r := newTestResponder(t, g, affinity.PolicyTrend)

	reply, err := r.Respond(context.Background(), Request{Character: luna, Message: "오늘 고마웠어", Affinity: 50})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if got := strings.Join(g.calls, ","); got != "classify,adjust,generate" {
		t.Errorf("call order = %s", got)
	}
	if reply.Text != "고마워요!" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Emotion != emotion.Happy {
		t.Errorf("Emotion = %q", reply.Emotion)
	}
	if reply.Affinity != 55 {
		t.Errorf("Affinity = %d, want 55", reply.Affinity)
	}
	if reply.AddressTerm != affinity.Friend {
		t.Errorf("AddressTerm = %q, want %q", reply.AddressTerm, affinity.Friend)
	}
	if len(reply.History) != 1 || reply.History[0].Emotion != emotion.Happy {
		t.Errorf("History = %+v", reply.History)
	}
	if reply.Meta.Outcome != affinity.Increase {
		t.Errorf("Outcome = %q", reply.Meta.Outcome)
	}
}

func TestRespond_AddressTermUsesUpdatedScore(t *testing.T) {
	g := &scriptedGenerator{emotion: "Grateful", outcome: "Increase", reply: "ok"}
	r := newTestResponder(t, g, affinity.PolicyTrend)

	// 68 + 5 crosses the cherished-friend threshold.
	reply, err := r.Respond(context.Background(), Request{Character: luna, Message: "thanks", Affinity: 68})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.AddressTerm != affinity.CherishedFriend {
		t.Errorf("AddressTerm = %q, want %q", reply.AddressTerm, affinity.CherishedFriend)
	}
	prompt := g.lastPrompt()
	if !strings.Contains(prompt, `"소중한 친구"`) {
		t.Error("prompt should carry the updated address term")
	}
	if !strings.Contains(prompt, "toward the user is: 73") {
		t.Error("prompt should carry the updated score")
	}
	if !strings.Contains(prompt, "current emotional state** is: Grateful") {
		t.Error("prompt should carry the classified emotion")
	}
}

func TestRespond_KeywordPolicy(t *testing.T) {
	g := &scriptedGenerator{emotion: "Grateful", reply: "천만에요"}
	r := newTestResponder(t, g, affinity.PolicyKeyword)

	reply, err := r.Respond(context.Background(), Request{Character: luna, Message: "고마워", Affinity: 50})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Affinity != 60 {
		t.Errorf("Affinity = %d, want 60", reply.Affinity)
	}
	if got := strings.Join(g.calls, ","); got != "classify,generate" {
		t.Errorf("call order = %s, keyword policy should not call the provider", got)
	}
}

func TestRespond_GenerationFailureKeepsState(t *testing.T) {
	g := &scriptedGenerator{emotion: "Sad", outcome: "Decrease", replyErr: errors.New("upstream 503")}
	r := newTestResponder(t, g, affinity.PolicyTrend)

	reply, err := r.Respond(context.Background(), Request{Character: luna, Message: "실망이야", Affinity: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("errors.Is(err, ErrGeneration) = false for %v", err)
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %T", err)
	}
	if genErr.Reply.Affinity != 5 || genErr.Reply.Emotion != emotion.Sad {
		t.Errorf("partial reply = %+v", genErr.Reply)
	}
	if reply.Affinity != 5 || reply.Emotion != emotion.Sad || len(reply.History) != 1 {
		t.Errorf("returned reply = %+v", reply)
	}
	if reply.Text != "" {
		t.Errorf("Text = %q, want empty", reply.Text)
	}
}

func TestRespond_ClassifierFallback(t *testing.T) {
	g := &scriptedGenerator{emotion: "Ecstatic", outcome: "Neutral", reply: "hm"}
	r := newTestResponder(t, g, affinity.PolicyTrend)

	reply, err := r.Respond(context.Background(), Request{Character: luna, Message: "hello", Affinity: 40})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Emotion != emotion.Neutral || !reply.Meta.ClassifierFellBack {
		t.Errorf("Emotion = %q fellBack = %v", reply.Emotion, reply.Meta.ClassifierFellBack)
	}
	if reply.Affinity != 40 {
		t.Errorf("Affinity = %d, want 40", reply.Affinity)
	}
}

func TestRespond_HistoryCarriedIntoPrompt(t *testing.T) {
	g := &scriptedGenerator{emotion: "Happy", outcome: "Neutral", reply: "ok"}
	r := newTestResponder(t, g, affinity.PolicyTrend)

	history := []affinity.Entry{{Message: "어제 영화 봤어", Emotion: emotion.Happy}}
	reply, err := r.Respond(context.Background(), Request{Character: luna, Message: "재밌었어", Affinity: 50, History: history})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(g.lastPrompt(), "어제 영화 봤어") {
		t.Error("prompt missing prior history")
	}
	if len(reply.History) != 2 || reply.History[1].Message != "재밌었어" {
		t.Errorf("History = %+v", reply.History)
	}
	if len(history) != 1 {
		t.Error("caller history mutated")
	}
}

func TestRespond_InvalidRequest(t *testing.T) {
	g := &scriptedGenerator{}
	r := newTestResponder(t, g, affinity.PolicyTrend)

	tests := []Request{
		{Character: luna, Message: "   "},
		{Character: profile.Character{}, Message: "hi"},
	}
	for _, req := range tests {
		_, err := r.Respond(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Respond(%+v) err = %v, want ErrInvalidRequest", req, err)
		}
	}
	if len(g.calls) != 0 {
		t.Errorf("provider called for invalid request: %v", g.calls)
	}
}
