package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	scope TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY(scope, key)
);
`

// NewSQLiteRepository opens (and creates if needed) the database at path. Use ":memory:" for a throwaway one.
func NewSQLiteRepository(path string, l *slog.Logger) (*SQLiteRepository, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing sqlite: %w", err)
		}
	}

	return &SQLiteRepository{db: db, l: l}, nil
}

type SQLiteRepository struct {
	db *sql.DB
	l  *slog.Logger
}

func (s *SQLiteRepository) Get(ctx context.Context, scope, key string) ([]byte, error) {
	var value []byte

	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE scope = ? AND key = ?`, scope, key).
		Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return value, nil
}

func (s *SQLiteRepository) Set(ctx context.Context, scope, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (scope, key, value, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, scope, key, value)
	if err != nil {
		return err
	}

	s.l.DebugContext(ctx, "Stored "+key+" for "+scope)
	return nil
}

func (s *SQLiteRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}
