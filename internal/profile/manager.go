package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/charbot/internal/storage"
)

// CharacterStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type CharacterStore interface {
	CreateCharacter(c storage.Character) (int64, error)
	GetCharacter(id int64) (storage.Character, error)
	ListCharacters(activeOnly bool) ([]storage.Character, error)
	IncrementCharacterLikes(id int64) (int, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cachedCharacter struct {
	c        Character
	cachedAt time.Time
}

// Manager provides cached access to the character catalogue stored in SQLite.
// Characters are read on every chat turn, so lookups by id are cached.
type Manager struct {
	store CharacterStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[int64]cachedCharacter
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store CharacterStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store CharacterStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[int64]cachedCharacter),
	}
}

// Create validates and persists c, returning it with its assigned id.
func (m *Manager) Create(c Character) (Character, error) {
	if err := c.Validate(); err != nil {
		return Character{}, err
	}
	row, err := toRow(c)
	if err != nil {
		return Character{}, err
	}
	row.IsActive = true
	row.CreatedAt = m.clock.Now()

	id, err := m.store.CreateCharacter(row)
	if err != nil {
		return Character{}, fmt.Errorf("saving character %q: %w", c.Name, err)
	}
	c.ID = id
	c.CreatedAt = row.CreatedAt
	return c, nil
}

// Get returns the character with the given id from cache or storage.
// storage.ErrNotFound is passed through wrapped.
func (m *Manager) Get(id int64) (Character, error) {
	m.mu.RLock()
	if e, ok := m.cache[id]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		m.mu.RUnlock()
		return e.c, nil
	}
	m.mu.RUnlock()

	row, err := m.store.GetCharacter(id)
	if err != nil {
		return Character{}, fmt.Errorf("loading character %d: %w", id, err)
	}
	c := fromRow(row)

	m.mu.Lock()
	m.cache[id] = cachedCharacter{c: c, cachedAt: m.clock.Now()}
	m.mu.Unlock()
	return c, nil
}

// List returns all active characters. The list is not cached.
func (m *Manager) List() ([]Character, error) {
	rows, err := m.store.ListCharacters(true)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	out := make([]Character, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// Like increments the popularity counter of a character and invalidates its
// cache entry.
func (m *Manager) Like(id int64) (int, error) {
	likes, err := m.store.IncrementCharacterLikes(id)
	if err != nil {
		return 0, fmt.Errorf("liking character %d: %w", id, err)
	}
	m.mu.Lock()
	delete(m.cache, id)
	m.mu.Unlock()
	return likes, nil
}

func toRow(c Character) (storage.Character, error) {
	status := c.StatusMessages
	if status == nil {
		status = []string{}
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return storage.Character{}, fmt.Errorf("marshalling status messages: %w", err)
	}
	traitsJSON, err := json.Marshal(traits{
		Appearance:       c.Appearance,
		Personality:      c.Personality,
		Background:       c.Background,
		SpeechStyle:      c.SpeechStyle,
		ExampleDialogues: c.ExampleDialogues,
	})
	if err != nil {
		return storage.Character{}, fmt.Errorf("marshalling traits: %w", err)
	}
	return storage.Character{
		ID:             c.ID,
		Field:          c.Field,
		Name:           c.Name,
		Description:    c.Description,
		StatusMessages: string(statusJSON),
		Image:          c.Image,
		Likes:          c.Likes,
		Traits:         string(traitsJSON),
	}, nil
}

func fromRow(r storage.Character) Character {
	c := Character{
		ID:          r.ID,
		Name:        r.Name,
		Field:       r.Field,
		Description: r.Description,
		Image:       r.Image,
		Likes:       r.Likes,
		CreatedAt:   r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.StatusMessages), &c.StatusMessages); err != nil {
		slog.Warn("malformed character status messages, skipping", "id", r.ID, "error", err)
	}
	var t traits
	if err := json.Unmarshal([]byte(r.Traits), &t); err != nil {
		slog.Warn("malformed character traits, skipping", "id", r.ID, "error", err)
	}
	c.Appearance = t.Appearance
	c.Personality = t.Personality
	c.Background = t.Background
	c.SpeechStyle = t.SpeechStyle
	c.ExampleDialogues = t.ExampleDialogues
	return c
}
