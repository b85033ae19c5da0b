package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("profile not found")

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset TEXT NOT NULL,
    session_id TEXT NOT NULL,
    dataset_timestamp DATETIME NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profiles_dataset ON profiles(dataset, created_at);
`

// Store persists telemetry profile snapshots in SQLite.
type Store struct {
	db *sql.DB
}

type Profile struct {
	ID               int64     `json:"id"`
	Dataset          string    `json:"dataset"`
	SessionID        string    `json:"session_id"`
	DatasetTimestamp time.Time `json:"dataset_timestamp"`
	RecordCount      int64     `json:"record_count"`
	Payload          []byte    `json:"payload"`
	CreatedAt        time.Time `json:"created_at"`
}

// Open creates the parent directory if needed and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) SaveProfile(ctx context.Context, p Profile) (int64, error) {
	if p.Dataset == "" {
		return 0, errors.New("dataset required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO profiles (
            dataset, session_id, dataset_timestamp, record_count, payload, created_at
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Dataset, p.SessionID, p.DatasetTimestamp.UTC(), p.RecordCount, string(p.Payload), p.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListProfiles returns the newest profiles for a dataset first.
func (s *Store) ListProfiles(ctx context.Context, dataset string, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, dataset, session_id, dataset_timestamp, record_count, payload, created_at
        FROM profiles
        WHERE dataset = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, dataset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		var p Profile
		var payload string
		if err := rows.Scan(&p.ID, &p.Dataset, &p.SessionID, &p.DatasetTimestamp, &p.RecordCount, &payload, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Payload = []byte(payload)
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Store) LatestProfile(ctx context.Context, dataset string) (Profile, error) {
	profiles, err := s.ListProfiles(ctx, dataset, 1)
	if err != nil {
		return Profile{}, err
	}
	if len(profiles) == 0 {
		return Profile{}, ErrNotFound
	}
	return profiles[0], nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
