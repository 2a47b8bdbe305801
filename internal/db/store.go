package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding verification history
type Store struct {
	db *sql.DB
}

// Open opens (and creates/migrates) the database at the given path
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	// Ensure file exists with strict perms
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create database file: %w", err)
		}
		f.Close()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys=ON;")
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout=5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrations are applied in order; entry i moves user_version from i to i+1
var migrations = []string{
	// v1: runs and their per-definition results
	`
CREATE TABLE IF NOT EXISTS runs (
  id            TEXT PRIMARY KEY,
  started_at    INTEGER NOT NULL,
  finished_at   INTEGER NOT NULL,
  application   TEXT NOT NULL DEFAULT '',
  url           TEXT NOT NULL DEFAULT '',
  platform      TEXT NOT NULL DEFAULT '',
  browser       TEXT NOT NULL DEFAULT '',
  agent         TEXT NOT NULL DEFAULT '',
  catalog_yaml  TEXT NOT NULL,
  total_count   INTEGER NOT NULL,
  pass_count    INTEGER NOT NULL,
  fail_count    INTEGER NOT NULL,
  skipped_count INTEGER NOT NULL,
  error_count   INTEGER NOT NULL,
  pass_rate     REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
  run_id        TEXT NOT NULL,
  position      INTEGER NOT NULL,
  definition_id TEXT NOT NULL,
  verdict       TEXT NOT NULL,
  observation   TEXT NOT NULL DEFAULT '',
  checked_at    INTEGER NOT NULL,
  duration_ns   INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, position),
  FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`,
	// v2: filtered-out ids and lookup indexes
	`
CREATE TABLE IF NOT EXISTS run_exclusions (
  run_id        TEXT NOT NULL,
  definition_id TEXT NOT NULL,
  PRIMARY KEY (run_id, definition_id),
  FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_results_definition ON results(definition_id);
`,
}

func (s *Store) migrate(ctx context.Context) error {
	// user_version based migrations
	var ver int
	_ = s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)

	for ver < len(migrations) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, migrations[ver])
		if err == nil {
			_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", ver+1))
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v%d: %w", ver+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ver++
	}
	return nil
}

// Version returns the schema version of the database
func (s *Store) Version(ctx context.Context) (int, error) {
	var ver int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver); err != nil {
		return 0, err
	}
	return ver, nil
}

// Close closes the underlying DB
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sql.DB for advanced queries (read-only usage recommended)
func (s *Store) DB() *sql.DB { return s.db }
