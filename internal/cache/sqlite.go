package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bakeops/internal/api"

	_ "github.com/mattn/go-sqlite3"
)

// SnapshotStore persists the last-known snapshot per view key so a restart
// can show stale-but-available data while the first real fetch is in
// flight. It is never authoritative: every boot still issues a fetch.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore opens (and if needed initializes) the store at dbPath.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		view_key TEXT PRIMARY KEY,
		payload  BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

// Save stores the page under the view key, replacing any previous snapshot.
func (s *SnapshotStore) Save(ctx context.Context, viewKey string, page api.Page) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (view_key, payload, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(view_key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		viewKey, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored page for the view key, or ok=false if none.
func (s *SnapshotStore) Load(ctx context.Context, viewKey string) (api.Page, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE view_key = ?`, viewKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Page{}, false, nil
	}
	if err != nil {
		return api.Page{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var page api.Page
	if err := json.Unmarshal(payload, &page); err != nil {
		return api.Page{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return page, true, nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
