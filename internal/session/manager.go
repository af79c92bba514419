package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/charbot/internal/affinity"
)

// Manager serializes turns per session id. Turns on different sessions run
// concurrently and never share state.
type Manager struct {
	store   Store
	initial int
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager. New sessions start at initialAffinity
// (clamped) unless the caller provides its own seed.
func NewManager(store Store, initialAffinity int) *Manager {
	return &Manager{
		store:   store,
		initial: affinity.Clamp(initialAffinity),
		now:     time.Now,
		locks:   make(map[string]*sessionLock),
	}
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// Turn loads the conversation for id, passes it to fn and saves it
// afterwards. A missing session starts from seed, or from the initial
// affinity when seed is nil. The conversation is saved even when fn returns
// an error so partial results (an adjusted score) survive; fn should leave c
// untouched when it fails before computing anything. fn's error is returned.
func (m *Manager) Turn(ctx context.Context, id string, seed *Conversation, fn func(c *Conversation) error) (Conversation, error) {
	if id == "" {
		return Conversation{}, fmt.Errorf("session id is required")
	}
	unlock := m.lock(id)
	defer unlock()

	c, err := m.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		c = Conversation{Affinity: m.initial}
		if seed != nil {
			c.Affinity = affinity.Clamp(seed.Affinity)
			c.History = cloneHistory(seed.History)
		}
		c.ID = id
	case err != nil:
		return Conversation{}, err
	}

	fnErr := fn(&c)
	c.ID = id
	c.UpdatedAt = m.now()
	if err := m.store.Save(ctx, c); err != nil {
		return c, errors.Join(fnErr, err)
	}
	return c, fnErr
}

// Get returns the stored state of id.
func (m *Manager) Get(ctx context.Context, id string) (Conversation, error) {
	return m.store.Get(ctx, id)
}

// Reset forgets the state of id. Waits for an in-flight turn on the same id.
func (m *Manager) Reset(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()
	return m.store.Delete(ctx, id)
}

// Sweeper returns the store's Sweeper, or nil when the store expires
// sessions on its own.
func (m *Manager) Sweeper() Sweeper {
	s, _ := m.store.(Sweeper)
	return s
}
