package profile

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/charbot/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	mu     sync.Mutex
	rows   map[int64]storage.Character
	nextID int64

	getCalls int
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[int64]storage.Character)}
}

func (m *mockStore) CreateCharacter(c storage.Character) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.rows[c.ID] = c
	return c.ID, nil
}

func (m *mockStore) GetCharacter(id int64) (storage.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	c, ok := m.rows[id]
	if !ok {
		return storage.Character{}, storage.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) ListCharacters(activeOnly bool) ([]storage.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Character
	for id := int64(1); id <= m.nextID; id++ {
		c, ok := m.rows[id]
		if !ok || (activeOnly && !c.IsActive) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *mockStore) IncrementCharacterLikes(id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	c.Likes++
	m.rows[id] = c
	return c.Likes, nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Tests ---

func TestCreate_AssignsIDAndRoundTripsTraits(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)

	created, err := mgr.Create(Character{
		Name:        "Luna",
		Field:       "fantasy",
		Appearance:  "silver hair",
		Personality: map[string]any{"mood": "cheerful", "tags": []any{"kind", "curious"}},
		ExampleDialogues: []any{
			"Hi there!",
			map[string]any{"user": "hello", "character": "welcome back"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != 1 {
		t.Errorf("ID = %d, want 1", created.ID)
	}

	got, err := mgr.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Luna" || got.Field != "fantasy" {
		t.Errorf("got %+v", got)
	}
	if got.Appearance != "silver hair" {
		t.Errorf("Appearance = %v, want silver hair", got.Appearance)
	}
	p, ok := got.Personality.(map[string]any)
	if !ok {
		t.Fatalf("Personality type = %T, want map", got.Personality)
	}
	if p["mood"] != "cheerful" {
		t.Errorf("Personality.mood = %v", p["mood"])
	}
	if len(got.ExampleDialogues) != 2 {
		t.Errorf("ExampleDialogues len = %d, want 2", len(got.ExampleDialogues))
	}
	if !store.rows[1].IsActive {
		t.Error("new characters should be active")
	}
}

func TestCreate_RequiresName(t *testing.T) {
	mgr := NewManager(newMockStore())

	_, err := mgr.Create(Character{Name: "   "})
	if !errors.Is(err, ErrInvalidCharacter) {
		t.Fatalf("expected ErrInvalidCharacter, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	mgr := NewManager(newMockStore())

	_, err := mgr.Get(42)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
}

func TestGet_CacheTTL(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Date(2024, 11, 2, 14, 0, 0, 0, time.UTC)}
	mgr := NewManagerWithClock(store, clock, 60*time.Second)

	c, err := mgr.Create(Character{Name: "Luna"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for range 3 {
		if _, err := mgr.Get(c.ID); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if store.getCalls != 1 {
		t.Errorf("store reads = %d, want 1 (cached)", store.getCalls)
	}

	clock.Advance(61 * time.Second)
	if _, err := mgr.Get(c.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if store.getCalls != 2 {
		t.Errorf("store reads = %d, want 2 after TTL", store.getCalls)
	}
}

func TestLike_InvalidatesCache(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)

	c, _ := mgr.Create(Character{Name: "Luna"})
	if _, err := mgr.Get(c.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	likes, err := mgr.Like(c.ID)
	if err != nil {
		t.Fatalf("Like: %v", err)
	}
	if likes != 1 {
		t.Errorf("likes = %d, want 1", likes)
	}

	got, _ := mgr.Get(c.ID)
	if got.Likes != 1 {
		t.Errorf("cached likes = %d, want 1 after invalidation", got.Likes)
	}
}

func TestLike_NotFound(t *testing.T) {
	mgr := NewManager(newMockStore())
	if _, err := mgr.Like(9); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
}

func TestList_OnlyActive(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)

	mgr.Create(Character{Name: "Luna"})
	mgr.Create(Character{Name: "Sol"})
	r := store.rows[2]
	r.IsActive = false
	store.rows[2] = r

	list, err := mgr.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Luna" {
		t.Errorf("List = %+v, want only Luna", list)
	}
}

func TestFromRow_MalformedTraits(t *testing.T) {
	c := fromRow(storage.Character{ID: 3, Name: "Broken", StatusMessages: "not json", Traits: "{"})
	if c.Name != "Broken" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.Appearance != nil || c.StatusMessages != nil {
		t.Errorf("expected empty traits, got %+v", c)
	}
}
