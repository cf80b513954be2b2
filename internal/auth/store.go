package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPermissions is the permission mode for the store directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the store file.
	filePermissions = 0600
)

// Tokens is one persisted session snapshot.
type Tokens struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Store persists rotated session tokens across process restarts.
// It holds at most one row; every Save replaces the previous snapshot.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (creating if necessary) the token store at path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating token store directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	// Single caller; no need for a pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tokens (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			user_id       TEXT NOT NULL DEFAULT '',
			access_token  TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL,
			expires_at    INTEGER NOT NULL DEFAULT 0,
			updated_at    INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tokens table: %w", err)
	}

	// Tokens are credentials; keep the file private.
	if err := os.Chmod(path, filePermissions); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting token store permissions: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Save replaces the persisted session snapshot.
func (s *Store) Save(t Tokens) error {
	_, err := s.db.Exec(`
		INSERT INTO tokens (id, user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id       = excluded.user_id,
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			updated_at    = excluded.updated_at`,
		t.UserID, t.AccessToken, t.RefreshToken, t.ExpiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot, or found=false when none exists.
func (s *Store) Load() (t Tokens, found bool, err error) {
	var expiresAt int64
	err = s.db.QueryRow(`
		SELECT user_id, access_token, refresh_token, expires_at
		FROM tokens WHERE id = 1`).
		Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Tokens{}, false, nil
	}
	if err != nil {
		return Tokens{}, false, fmt.Errorf("loading tokens: %w", err)
	}

	t.ExpiresAt = time.Unix(expiresAt, 0)
	return t, true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
