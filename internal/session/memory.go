package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process memory. State is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]Conversation)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	c.History = cloneHistory(c.History)
	return c, nil
}

func (s *MemoryStore) Save(_ context.Context, c Conversation) error {
	c.History = cloneHistory(c.History)
	s.mu.Lock()
	s.convs[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return ErrNotFound
	}
	delete(s.convs, id)
	return nil
}

func (s *MemoryStore) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.convs {
		if c.UpdatedAt.Before(cutoff) {
			delete(s.convs, id)
			n++
		}
	}
	return n, nil
}
