package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding characters, chat rooms, messages and
// per-session conversation state.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "charbot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and avoids
	// "database is locked" errors.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that are not yet recorded in schema_version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Characters ---

// CreateCharacter inserts c and returns its assigned id. CreatedAt defaults to now.
func (s *Store) CreateCharacter(c Character) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.StatusMessages == "" {
		c.StatusMessages = "[]"
	}
	if c.Traits == "" {
		c.Traits = "{}"
	}
	res, err := s.db.Exec(`
		INSERT INTO characters (field, name, description, status_messages, prompt, image, likes, is_active, traits, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Field, c.Name, c.Description, c.StatusMessages, c.Prompt, c.Image,
		c.Likes, boolToInt(c.IsActive), c.Traits, c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const characterColumns = `id, field, name, description, status_messages, prompt, image, likes, is_active, traits, created_at`

func (s *Store) GetCharacter(id int64) (Character, error) {
	row := s.db.QueryRow(`SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Character{}, ErrNotFound
	}
	return c, err
}

// ListCharacters returns characters ordered by id. When activeOnly is set,
// deactivated characters are skipped.
func (s *Store) ListCharacters(activeOnly bool) ([]Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IncrementCharacterLikes bumps the popularity counter and returns the new value.
func (s *Store) IncrementCharacterLikes(id int64) (int, error) {
	res, err := s.db.Exec(`UPDATE characters SET likes = likes + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	var likes int
	if err := s.db.QueryRow(`SELECT likes FROM characters WHERE id = ?`, id).Scan(&likes); err != nil {
		return 0, err
	}
	return likes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(r rowScanner) (Character, error) {
	var c Character
	var active int
	var createdAt string
	if err := r.Scan(&c.ID, &c.Field, &c.Name, &c.Description, &c.StatusMessages, &c.Prompt,
		&c.Image, &c.Likes, &active, &c.Traits, &createdAt); err != nil {
		return Character{}, err
	}
	c.IsActive = active != 0
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Character{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// --- Chat rooms ---

func (s *Store) CreateRoom(r ChatRoom) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_rooms (id, character_id, character_name, created_at)
		VALUES (?, ?, ?, ?)`,
		r.ID, r.CharacterID, r.CharacterName, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetRoom(id string) (ChatRoom, error) {
	var r ChatRoom
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, character_id, character_name, created_at
		FROM chat_rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.CharacterID, &r.CharacterName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatRoom{}, ErrNotFound
	}
	if err != nil {
		return ChatRoom{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return ChatRoom{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

// --- Messages ---

func (s *Store) SaveMessage(m Message) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (id, room_id, sender, content, emotion, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, m.Sender, m.Content, m.Emotion, m.Timestamp.UTC().Format(tsLayout),
	)
	return err
}

// ListMessages returns the messages of a room in chronological order.
func (s *Store) ListMessages(roomID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, room_id, sender, content, emotion, timestamp
		FROM messages WHERE room_id = ?
		ORDER BY timestamp ASC, rowid ASC
		LIMIT ? OFFSET ?`, roomID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Sender, &m.Content, &m.Emotion, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		m.Timestamp = t
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Conversations ---

func (s *Store) GetConversation(sessionID string) (Conversation, error) {
	var c Conversation
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT session_id, affinity, history, updated_at
		FROM conversations WHERE session_id = ?`, sessionID,
	).Scan(&c.SessionID, &c.Affinity, &c.History, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	t, err := time.Parse(tsLayout, updatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	c.UpdatedAt = t
	return c, nil
}

// SaveConversation inserts or replaces the state of a session.
func (s *Store) SaveConversation(c Conversation) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	if c.History == "" {
		c.History = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (session_id, affinity, history, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			affinity = excluded.affinity,
			history = excluded.history,
			updated_at = excluded.updated_at`,
		c.SessionID, c.Affinity, c.History, c.UpdatedAt.UTC().Format(tsLayout),
	)
	return err
}

func (s *Store) DeleteConversation(sessionID string) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversationsBefore removes sessions not updated since cutoff and
// returns how many were removed.
func (s *Store) DeleteConversationsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE updated_at < ?`, cutoff.UTC().Format(tsLayout))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
