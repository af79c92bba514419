package affinity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/charbot/internal/emotion"
)

// entryTimeLayout matches the timestamps the web client already stores.
const entryTimeLayout = "2006-01-02 15:04:05"

// Entry is one user turn in a conversation.
type Entry struct {
	Message   string
	Emotion   emotion.Label
	Timestamp time.Time
}

type entryJSON struct {
	Message   string `json:"message"`
	Emotion   string `json:"emotion"`
	Timestamp string `json:"timestamp"`
}

// MarshalJSON writes the timestamp in local time, the zone UnmarshalJSON
// reads the zone-less layout in.
func (e Entry) MarshalJSON() ([]byte, error) {
	ts := ""
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.In(time.Local).Format(entryTimeLayout)
	}
	return json.Marshal(entryJSON{Message: e.Message, Emotion: string(e.Emotion), Timestamp: ts})
}

// UnmarshalJSON accepts both the "2006-01-02 15:04:05" layout and RFC 3339.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Message = raw.Message
	e.Emotion = emotion.Label(raw.Emotion)
	e.Timestamp = time.Time{}
	if raw.Timestamp == "" {
		return nil
	}
	if t, err := time.ParseInLocation(entryTimeLayout, raw.Timestamp, time.Local); err == nil {
		e.Timestamp = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("parsing history timestamp %q: %w", raw.Timestamp, err)
	}
	e.Timestamp = t
	return nil
}

// appendEntry returns a new slice; the caller's backing array is never written.
func appendEntry(history []Entry, e Entry) []Entry {
	out := make([]Entry, len(history), len(history)+1)
	copy(out, history)
	return append(out, e)
}

// recentWindow returns the last n entries, left-padded with synthetic
// Neutral entries when fewer than n exist.
func recentWindow(history []Entry, n int) []Entry {
	if len(history) >= n {
		return history[len(history)-n:]
	}
	out := make([]Entry, 0, n)
	for i := len(history); i < n; i++ {
		out = append(out, Entry{Emotion: emotion.Neutral})
	}
	return append(out, history...)
}

func countEmotions(entries []Entry) map[emotion.Label]int {
	counts := make(map[emotion.Label]int, len(entries))
	for _, e := range entries {
		counts[e.Emotion]++
	}
	return counts
}

func countTagged(entries []Entry, substr string) int {
	n := 0
	for _, e := range entries {
		if strings.Contains(string(e.Emotion), substr) {
			n++
		}
	}
	return n
}
