package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/review"
	"github.com/Veraticus/spice-reconcile/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options tunes the local import service.
type Options struct {
	// Now stamps reviews and new batches. Defaults to time.Now.
	Now func() time.Time
	// MinSimilarity is passed to duplicate detection. Zero disables the
	// description check.
	MinSimilarity float64
	// AllowReReview lets approved or rejected transactions be reviewed again.
	AllowReReview bool
}

// SQLiteStorage is the local import service backed by SQLite.
type SQLiteStorage struct {
	db      *sql.DB
	now     func() time.Time
	machine review.Machine
	dbPath  string
	opts    Options
}

var _ service.Backend = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (creating if needed) the database at dbPath.
func NewSQLiteStorage(dbPath string, opts Options) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != MemoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps writes serialized and an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &SQLiteStorage{
		db:      db,
		dbPath:  dbPath,
		opts:    opts,
		now:     func() time.Time { return now().UTC() },
		machine: review.Machine{Now: func() time.Time { return now().UTC() }, AllowReReview: opts.AllowReReview},
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a database transaction, committing when fn succeeds.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
