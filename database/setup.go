package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS contest (
	key      TEXT PRIMARY KEY,
	post_id  TEXT NOT NULL,
	card_one TEXT NOT NULL,
	card_two TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS result (
	contest_key TEXT NOT NULL REFERENCES contest(key) ON DELETE CASCADE,
	entrant     TEXT NOT NULL,
	query       TEXT NOT NULL,
	length      INTEGER NOT NULL,
	rank        INTEGER NOT NULL,
	PRIMARY KEY (contest_key, rank)
);

CREATE INDEX IF NOT EXISTS idx_result_entrant ON result(entrant);
`

// Store holds the standings database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	// modernc.org/sqlite driver name is "sqlite"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps the pragmas and :memory: databases consistent
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
