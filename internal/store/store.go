// Package store owns the SQLite connection and transaction plumbing every
// other component builds on. It follows bt-go/internal/database's split
// between a configured *sql.DB (OpenConnection) and a thin wrapper
// (SQLiteDatabase) that other packages depend on through their own
// collaborator interfaces rather than on *sql.DB directly.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"filecache-core/internal/store/migrations"
	"filecache-core/internal/store/sqlc"
)

// Store wraps a configured SQLite connection plus the hand-written query
// layer.
type Store struct {
	db      *sql.DB
	Queries *sqlc.Queries
	path    string
}

// Open opens and configures path (a file path, or ":memory:") and runs
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return &Store{db: db, Queries: sqlc.New(db), path: path}, nil
}

// OpenConnection opens a SQLite connection with the PRAGMAs the cache
// requires: foreign keys enforced, WAL journaling so readers are never
// blocked by the directory refresher's writes, and a busy timeout so
// concurrent writers back off instead of failing immediately.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA recursive_triggers = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", p, err)
		}
	}

	// SQLite serializes writers regardless; capping the pool avoids piling
	// up goroutines behind SQLITE_BUSY instead of the busy_timeout above.
	db.SetMaxOpenConns(4)

	return db, nil
}

// NewFromDB wraps an already-open, already-configured *sql.DB, used by tests
// that apply sqlc.Schema directly instead of running migrations.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db, Queries: sqlc.New(db)}
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic, the same pattern bt-go's CreateDirectory and
// CreateFileSnapshotAndContent use for their own multi-statement writes.
func (s *Store) WithTx(ctx context.Context, fn func(q *sqlc.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// DB exposes the underlying connection for ad-hoc access outside the
// generated queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }
