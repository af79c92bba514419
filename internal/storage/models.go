package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Character struct {
	ID             int64
	Field          string
	Name           string
	Description    string
	StatusMessages string // JSON array stored as text
	Prompt         string
	Image          string
	Likes          int
	IsActive       bool
	Traits         string // JSON object stored as text
	CreatedAt      time.Time
}

type ChatRoom struct {
	ID            string
	CharacterID   int64
	CharacterName string
	CreatedAt     time.Time
}

type Message struct {
	ID        string
	RoomID    string
	Sender    string
	Content   string
	Emotion   string
	Timestamp time.Time
}

// Conversation is the persisted affinity state of one chat session.
type Conversation struct {
	SessionID string
	Affinity  int
	History   string // JSON array stored as text
	UpdatedAt time.Time
}
