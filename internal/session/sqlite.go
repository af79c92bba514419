package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/storage"
)

// ConversationStore defines the storage operations SQLiteStore needs.
// Implemented by storage.Store.
type ConversationStore interface {
	GetConversation(sessionID string) (storage.Conversation, error)
	SaveConversation(c storage.Conversation) error
	DeleteConversation(sessionID string) error
	DeleteConversationsBefore(cutoff time.Time) (int, error)
}

// SQLiteStore persists conversations in the conversations table.
type SQLiteStore struct {
	db ConversationStore
}

func NewSQLiteStore(db ConversationStore) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(_ context.Context, id string) (Conversation, error) {
	row, err := s.db.GetConversation(id)
	if errors.Is(err, storage.ErrNotFound) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	c := Conversation{ID: row.SessionID, Affinity: row.Affinity, UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal([]byte(row.History), &c.History); err != nil {
		return Conversation{}, fmt.Errorf("decoding history of session %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) Save(_ context.Context, c Conversation) error {
	history := c.History
	if history == nil {
		history = []affinity.Entry{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := s.db.SaveConversation(storage.Conversation{
		SessionID: c.ID,
		Affinity:  c.Affinity,
		History:   string(b),
		UpdatedAt: c.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("saving session %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(_ context.Context, id string) error {
	err := s.db.DeleteConversation(id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *SQLiteStore) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int, error) {
	return s.db.DeleteConversationsBefore(cutoff)
}
