package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// ErrSchemaTooNew means the database was written by a newer reconcile.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// migration is one schema step. Version is stored in PRAGMA user_version.
type migration struct {
	description string
	statements  []string
	version     int
}

var migrations = []migration{
	{
		version:     1,
		description: "Import batches and pending transactions",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS import_batches (
				id TEXT PRIMARY KEY,
				filename TEXT NOT NULL,
				institution_name TEXT,
				account_id TEXT,
				status TEXT NOT NULL DEFAULT 'processing',
				period_start DATETIME,
				period_end DATETIME,
				total_transactions INTEGER NOT NULL DEFAULT 0,
				processed_transactions INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_import_batches_created ON import_batches(created_at)`,
			`CREATE TABLE IF NOT EXISTS pending_transactions (
				id TEXT PRIMARY KEY,
				import_batch_id TEXT NOT NULL,
				fitid TEXT,
				date DATETIME NOT NULL,
				description TEXT NOT NULL,
				amount TEXT NOT NULL,
				transaction_type TEXT,
				predicted_category TEXT,
				user_category TEXT,
				confidence_score REAL,
				confidence_level TEXT,
				review_status TEXT NOT NULL DEFAULT 'pending',
				reviewed_at DATETIME,
				notes TEXT,
				FOREIGN KEY (import_batch_id) REFERENCES import_batches(id)
			)`,
			`CREATE INDEX idx_pending_batch ON pending_transactions(import_batch_id)`,
			`CREATE INDEX idx_pending_date ON pending_transactions(date)`,
		},
	},
	{
		version:     2,
		description: "Index FITIDs for re-import detection",
		statements:  []string{`CREATE INDEX idx_pending_fitid ON pending_transactions(fitid)`},
	},
	{
		version:     3,
		description: "Index review status for duplicate scans",
		statements:  []string{`CREATE INDEX idx_pending_status ON pending_transactions(review_status)`},
	},
}

// ExpectedSchemaVersion is the version Migrate leaves the database at.
var ExpectedSchemaVersion = migrations[len(migrations)-1].version

func (s *SQLiteStorage) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies every migration newer than the database, each in its own
// transaction together with the version bump.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > ExpectedSchemaVersion {
		return fmt.Errorf("%w: database is at %d, this build knows %d", ErrSchemaTooNew, current, ExpectedSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}
		slog.Info("Applied migration", "version", m.version, "description", m.description)
	}
	return nil
}
