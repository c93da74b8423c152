package telemetry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Exchange summarizes one submit and the stream it opened.
// Message text is never stored; the prompt is kept only as a digest.
type Exchange struct {
	ID           string
	Backend      string
	Model        string
	PromptDigest string
	Fragments    int
	Bytes        int
	StartedAt    time.Time
	Duration     time.Duration
	Error        string
}

// Digest returns the hex sha256 of text
func Digest(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

// Store is the SQLite exchange log
type Store struct {
	db *sql.DB
}

// OpenStore opens (and creates if needed) the exchange log at path
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createExchangesTable := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		backend TEXT,
		model TEXT,
		prompt_digest TEXT,
		fragments INTEGER,
		bytes INTEGER,
		started_at DATETIME,
		duration_ms INTEGER,
		error TEXT
	);`

	if _, err := db.Exec(createExchangesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create exchanges table: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordExchange appends one exchange row
func (s *Store) RecordExchange(ctx context.Context, ex Exchange) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, backend, model, prompt_digest, fragments, bytes, started_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Backend, ex.Model, ex.PromptDigest, ex.Fragments, ex.Bytes,
		ex.StartedAt, ex.Duration.Milliseconds(), ex.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// Exchanges returns the logged exchanges, oldest first
func (s *Store) Exchanges(ctx context.Context) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, backend, model, prompt_digest, fragments, bytes, started_at, duration_ms, error
		FROM exchanges ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var durationMs int64
		if err := rows.Scan(&ex.ID, &ex.Backend, &ex.Model, &ex.PromptDigest, &ex.Fragments,
			&ex.Bytes, &ex.StartedAt, &durationMs, &ex.Error); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		ex.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
