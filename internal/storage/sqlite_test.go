package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not ascending: %v", versions)
		}
	}
}

func createTestCharacter(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	id, err := s.CreateCharacter(Character{Name: name, IsActive: true})
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	return id
}

func TestCharacters_CreateGetList(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateCharacter(Character{
		Field:          "romance",
		Name:           "Luna",
		Description:    "a shy librarian",
		StatusMessages: `["reading"]`,
		Image:          "https://example.com/luna.png",
		IsActive:       true,
		Traits:         `{"appearance":"glasses"}`,
	})
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}

	got, err := s.GetCharacter(id)
	if err != nil {
		t.Fatalf("GetCharacter: %v", err)
	}
	if got.Name != "Luna" || got.Field != "romance" || got.Traits != `{"appearance":"glasses"}` {
		t.Errorf("unexpected character: %+v", got)
	}
	if !got.IsActive {
		t.Error("expected active character")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	inactive, err := s.CreateCharacter(Character{Name: "Retired"})
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	raw, _ := s.GetCharacter(inactive)
	if raw.StatusMessages != "[]" || raw.Traits != "{}" {
		t.Errorf("defaults not applied: status=%q traits=%q", raw.StatusMessages, raw.Traits)
	}

	active, err := s.ListCharacters(true)
	if err != nil {
		t.Fatalf("ListCharacters: %v", err)
	}
	if len(active) != 1 || active[0].ID != id {
		t.Errorf("active list = %+v, want only %d", active, id)
	}
	all, _ := s.ListCharacters(false)
	if len(all) != 2 {
		t.Errorf("full list len = %d, want 2", len(all))
	}
}

func TestCharacters_NotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetCharacter(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCharacter: expected ErrNotFound, got %v", err)
	}
	if _, err := s.IncrementCharacterLikes(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementCharacterLikes: expected ErrNotFound, got %v", err)
	}
}

func TestCharacters_IncrementLikes(t *testing.T) {
	s := openTestStore(t)
	id := createTestCharacter(t, s, "Luna")

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementCharacterLikes(id)
		if err != nil {
			t.Fatalf("IncrementCharacterLikes: %v", err)
		}
		if got != want {
			t.Errorf("likes = %d, want %d", got, want)
		}
	}
}

func TestRooms_CreateGet(t *testing.T) {
	s := openTestStore(t)
	cid := createTestCharacter(t, s, "Luna")

	if err := s.CreateRoom(ChatRoom{ID: "room-1", CharacterID: cid, CharacterName: "Luna"}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	r, err := s.GetRoom("room-1")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if r.CharacterID != cid || r.CharacterName != "Luna" {
		t.Errorf("unexpected room: %+v", r)
	}

	if _, err := s.GetRoom("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRooms_UnknownCharacterRejected(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateRoom(ChatRoom{ID: "room-x", CharacterID: 404, CharacterName: "Ghost"})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestMessages_ChronologicalWithPaging(t *testing.T) {
	s := openTestStore(t)
	cid := createTestCharacter(t, s, "Luna")
	if err := s.CreateRoom(ChatRoom{ID: "room-1", CharacterID: cid, CharacterName: "Luna"}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	base := time.Date(2024, 11, 2, 14, 30, 0, 0, time.UTC)
	// Insert out of order; listing must sort by timestamp.
	for _, i := range []int{2, 0, 1} {
		err := s.SaveMessage(Message{
			ID:        fmt.Sprintf("m%d", i),
			RoomID:    "room-1",
			Sender:    "user",
			Content:   fmt.Sprintf("message %d", i),
			Emotion:   "Happy",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	msgs, err := s.ListMessages("room-1", 0, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("msgs[%d].ID = %q, want m%d", i, m.ID, i)
		}
	}
	if !msgs[0].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", msgs[0].Timestamp, base)
	}

	page, err := s.ListMessages("room-1", 1, 1)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(page) != 1 || page[0].ID != "m1" {
		t.Errorf("page = %+v, want m1", page)
	}

	other, _ := s.ListMessages("room-2", 10, 0)
	if len(other) != 0 {
		t.Errorf("expected no messages for unknown room, got %d", len(other))
	}
}

func TestConversations_Upsert(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetConversation("sess"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SaveConversation(Conversation{SessionID: "sess", Affinity: 50}); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	c, err := s.GetConversation("sess")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if c.Affinity != 50 || c.History != "[]" {
		t.Errorf("unexpected conversation: %+v", c)
	}

	history := `[{"message":"hi","emotion":"Happy","timestamp":"2024-11-02 14:30:00"}]`
	if err := s.SaveConversation(Conversation{SessionID: "sess", Affinity: 55, History: history}); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	c, _ = s.GetConversation("sess")
	if c.Affinity != 55 || c.History != history {
		t.Errorf("upsert not applied: %+v", c)
	}
}

func TestConversations_Delete(t *testing.T) {
	s := openTestStore(t)

	if err := s.DeleteConversation("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	s.SaveConversation(Conversation{SessionID: "sess", Affinity: 10})
	if err := s.DeleteConversation("sess"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := s.GetConversation("sess"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConversations_DeleteBefore(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2024, 11, 2, 14, 0, 0, 0, time.UTC)

	s.SaveConversation(Conversation{SessionID: "old", Affinity: 1, UpdatedAt: now.Add(-2 * time.Hour)})
	s.SaveConversation(Conversation{SessionID: "older", Affinity: 1, UpdatedAt: now.Add(-48 * time.Hour)})
	s.SaveConversation(Conversation{SessionID: "fresh", Affinity: 1, UpdatedAt: now.Add(-time.Minute)})

	n, err := s.DeleteConversationsBefore(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteConversationsBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if _, err := s.GetConversation("fresh"); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}
}
