// Package session keeps per-conversation affinity state between turns.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/kalambet/charbot/internal/affinity"
)

// ErrNotFound is returned when a session has no stored state.
var ErrNotFound = errors.New("session not found")

// Conversation is the state carried from one turn to the next.
type Conversation struct {
	ID        string           `json:"id"`
	Affinity  int              `json:"affinity"`
	History   []affinity.Entry `json:"history"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store persists conversations by session id.
type Store interface {
	Get(ctx context.Context, id string) (Conversation, error)
	Save(ctx context.Context, c Conversation) error
	Delete(ctx context.Context, id string) error
}

// Sweeper is implemented by stores that need explicit expiry of idle sessions.
type Sweeper interface {
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int, error)
}

func cloneHistory(h []affinity.Entry) []affinity.Entry {
	if h == nil {
		return nil
	}
	return append([]affinity.Entry(nil), h...)
}
