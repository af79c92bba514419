package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/emotion"
	"github.com/kalambet/charbot/internal/profile"
)

const defaultMaxHistoryTokens = 1500

const characterTemplate = `You are a fictional character. Stay true to your character's traits and context while interacting with the user. Below is your character information:
- **Appearance**: %s
- **Personality**: %s
- **Background**: %s
- **Speech Style**: %s
- **Name**: %s

Your **current emotional state** is: %s.
Your **favorability score** toward the user is: %d.

The user is referred to as: "%s".

**Response Guidelines**:
1. Always maintain your character's unique personality, speech style, and background in all interactions.
2. Align your emotional responses with your current mood and background.
3. Respond naturally and conversationally, avoiding any robotic or generic tone.
4. First greetings must reflect your character's background, emotional state, and speech style.
5. Let your responses adapt naturally to changes in user input, favorability score, and mood during the conversation.
6. Always reference the recent conversation history to maintain coherence and context.
7. Speak in the first person as the character, in dialogue only.
8. Never prefix your responses with your name or any identifier.
9. Never break character or mention that you are an AI.

**Reference Dialogues (Your past interactions)**:
%s

**Recent conversation history**:
%s

**Current user input**:
%s

**Remember**: Your responses should reflect the essence of your character's traits, adapt dynamically to the interaction, and stay in character at all times.`

// Composer assembles the in-character prompt from the character profile,
// the computed affinity state and the recent conversation.
type Composer struct {
	MaxHistoryTokens int
}

// New creates a Composer with the given token budget for conversation
// history. If maxHistoryTokens <= 0, the default (1500) is used.
func New(maxHistoryTokens int) *Composer {
	if maxHistoryTokens <= 0 {
		maxHistoryTokens = defaultMaxHistoryTokens
	}
	return &Composer{MaxHistoryTokens: maxHistoryTokens}
}

// Input is everything a reply prompt is built from.
type Input struct {
	Character profile.Character
	Message   string
	Affinity  int
	Emotion   emotion.Label
	Address   affinity.AddressTerm
	History   []affinity.Entry
}

// Compose renders the prompt. Character traits are inserted verbatim;
// history is trimmed oldest-first to fit MaxHistoryTokens.
func (c *Composer) Compose(in Input) string {
	ch := in.Character
	return fmt.Sprintf(characterTemplate,
		formatTrait(ch.Appearance),
		formatTrait(ch.Personality),
		formatTrait(ch.Background),
		formatTrait(ch.SpeechStyle),
		ch.Name,
		in.Emotion,
		in.Affinity,
		in.Address,
		formatDialogues(ch.ExampleDialogues),
		c.formatHistory(in.History),
		in.Message,
	)
}

// formatHistory keeps the newest entries that fit the budget and renders
// them in chronological order.
func (c *Composer) formatHistory(history []affinity.Entry) string {
	if len(history) == 0 {
		return "(none)"
	}

	remaining := c.MaxHistoryTokens
	start := len(history)
	lines := make([]string, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		line := formatEntry(history[i])
		tokens := EstimateTokens(line)
		if tokens > remaining {
			break
		}
		lines[i] = line
		remaining -= tokens
		start = i
	}
	if start == len(history) {
		return "(none)"
	}
	return strings.Join(lines[start:], "\n")
}

func formatEntry(e affinity.Entry) string {
	ts := ""
	if !e.Timestamp.IsZero() {
		ts = "[" + e.Timestamp.Format("2006-01-02 15:04:05") + "] "
	}
	return fmt.Sprintf("%s(%s) %s", ts, e.Emotion, e.Message)
}

func formatDialogues(dialogues []any) string {
	if len(dialogues) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, d := range dialogues {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(formatTrait(d))
	}
	return sb.String()
}

// formatTrait renders strings as-is and anything structured as compact JSON.
func formatTrait(v any) string {
	switch t := v.(type) {
	case nil:
		return "(unspecified)"
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
