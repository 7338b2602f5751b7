package storage

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// maxAutoCheckpoints is how many automatic checkpoints survive cleanup.
const maxAutoCheckpoints = 5

// Checkpoint errors.
var (
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrCheckpointCorrupted = errors.New("checkpoint integrity check failed")
	ErrCheckpointExists    = errors.New("checkpoint already exists")
	ErrInvalidCheckpointID = errors.New("invalid checkpoint id")
	ErrNoCheckpointFile    = errors.New("in-memory databases cannot be checkpointed")
)

// CheckpointInfo describes one saved copy of the database.
type CheckpointInfo struct {
	CreatedAt     time.Time `json:"created_at"`
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	FileSize      int64     `json:"file_size"`
	Batches       int       `json:"batches"`
	Transactions  int       `json:"transactions"`
	Pending       int       `json:"pending"`
	SchemaVersion int       `json:"schema_version"`
	IsAuto        bool      `json:"is_auto"`
}

// CheckpointManager saves and restores copies of a database file. The copies
// live in a checkpoints directory next to the database.
type CheckpointManager struct {
	store *SQLiteStorage
	dir   string
}

// NewCheckpointManager creates a manager for store's database file.
func NewCheckpointManager(store *SQLiteStorage) (*CheckpointManager, error) {
	if store.dbPath == MemoryPath {
		return nil, ErrNoCheckpointFile
	}

	dir := filepath.Join(filepath.Dir(store.dbPath), "checkpoints")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &CheckpointManager{store: store, dir: dir}, nil
}

func validCheckpointID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidCheckpointID, id)
	}
	return nil
}

func (cm *CheckpointManager) dbFile(id string) string {
	return filepath.Join(cm.dir, id+".db")
}

func (cm *CheckpointManager) metaFile(id string) string {
	return filepath.Join(cm.dir, id+".meta.json")
}

// Create copies the database into a new checkpoint. An empty tag is replaced
// by one derived from the current time.
func (cm *CheckpointManager) Create(ctx context.Context, tag, description string) (CheckpointInfo, error) {
	if tag == "" {
		tag = "checkpoint-" + cm.store.now().Format("2006-01-02-150405")
	}
	return cm.create(ctx, tag, description, false)
}

// AutoCheckpoint saves a checkpoint before a destructive operation and keeps
// only the most recent automatic ones.
func (cm *CheckpointManager) AutoCheckpoint(ctx context.Context, operation string) (CheckpointInfo, error) {
	now := cm.store.now()
	tag := fmt.Sprintf("auto-%s-%s", operation, now.Format("2006-01-02-150405.000"))
	info, err := cm.create(ctx, tag, "Automatic checkpoint before "+operation, true)
	if err != nil {
		return CheckpointInfo{}, fmt.Errorf("failed to create auto-checkpoint: %w", err)
	}

	if err := cm.cleanupAuto(ctx); err != nil {
		slog.Warn("Failed to clean up old auto-checkpoints", "error", err)
	}
	return info, nil
}

func (cm *CheckpointManager) create(ctx context.Context, tag, description string, auto bool) (CheckpointInfo, error) {
	if err := validateContext(ctx); err != nil {
		return CheckpointInfo{}, err
	}
	if err := validCheckpointID(tag); err != nil {
		return CheckpointInfo{}, err
	}

	path := cm.dbFile(tag)
	if _, err := os.Stat(path); err == nil {
		return CheckpointInfo{}, fmt.Errorf("%w: %s", ErrCheckpointExists, tag)
	}

	info := CheckpointInfo{
		ID:          tag,
		CreatedAt:   cm.store.now(),
		Description: description,
		IsAuto:      auto,
	}
	if err := cm.collectCounts(ctx, &info); err != nil {
		return CheckpointInfo{}, err
	}

	if _, err := cm.store.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return CheckpointInfo{}, fmt.Errorf("failed to copy database: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return CheckpointInfo{}, fmt.Errorf("failed to stat checkpoint: %w", err)
	}
	info.FileSize = stat.Size()

	if err := writeMetadata(cm.metaFile(tag), info); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Error("Failed to remove checkpoint after metadata failure", "error", rmErr)
		}
		return CheckpointInfo{}, fmt.Errorf("failed to save metadata: %w", err)
	}

	slog.Debug("Created checkpoint", "id", tag, "size", info.FileSize, "auto", auto)
	return info, nil
}

func (cm *CheckpointManager) collectCounts(ctx context.Context, info *CheckpointInfo) error {
	version, err := cm.store.schemaVersion(ctx)
	if err != nil {
		return err
	}
	info.SchemaVersion = version

	db := cm.store.db
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_batches").Scan(&info.Batches); err != nil {
		return fmt.Errorf("failed to count batches: %w", err)
	}
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN review_status = 'pending' THEN 1 ELSE 0 END), 0)
		 FROM pending_transactions`).Scan(&info.Transactions, &info.Pending)
	if err != nil {
		return fmt.Errorf("failed to count transactions: %w", err)
	}
	return nil
}

// List returns all checkpoints, newest first. Unreadable metadata is skipped.
func (cm *CheckpointManager) List(_ context.Context) ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(cm.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	checkpoints := make([]CheckpointInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := readMetadata(filepath.Join(cm.dir, entry.Name()))
		if err != nil {
			slog.Debug("Skipping unreadable checkpoint metadata", "file", entry.Name(), "error", err)
			continue
		}
		checkpoints = append(checkpoints, info)
	}

	slices.SortFunc(checkpoints, func(a, b CheckpointInfo) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return checkpoints, nil
}

// Restore replaces the database with a checkpoint. It closes the store; the
// caller reopens the database afterwards.
func (cm *CheckpointManager) Restore(ctx context.Context, id string) error {
	if err := validCheckpointID(id); err != nil {
		return err
	}
	path := cm.dbFile(id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		return fmt.Errorf("failed to access checkpoint: %w", err)
	}
	if err := verifyIntegrity(ctx, path); err != nil {
		slog.Error("Checkpoint failed integrity check", "id", id, "error", err)
		return fmt.Errorf("%w: %s", ErrCheckpointCorrupted, id)
	}

	// Fold the WAL into the main file so the saved copy is complete.
	if _, err := cm.store.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	if err := cm.store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	dbPath := cm.store.dbPath
	backup := dbPath + ".restore-backup"
	if err := copyFile(dbPath, backup); err != nil {
		return fmt.Errorf("failed to back up current database: %w", err)
	}
	if err := copyFile(path, dbPath); err != nil {
		if restoreErr := copyFile(backup, dbPath); restoreErr != nil {
			slog.Error("Failed to put the database back after a failed restore", "error", restoreErr)
		}
		return fmt.Errorf("failed to restore checkpoint: %w", err)
	}
	for _, stale := range []string{dbPath + "-wal", dbPath + "-shm", backup} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove file after restore", "file", stale, "error", err)
		}
	}

	slog.Info("Restored checkpoint", "id", id)
	return nil
}

// Delete removes a checkpoint and its metadata.
func (cm *CheckpointManager) Delete(_ context.Context, id string) error {
	if err := validCheckpointID(id); err != nil {
		return err
	}
	if err := os.Remove(cm.dbFile(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	if err := os.Remove(cm.metaFile(id)); err != nil {
		slog.Debug("Failed to remove checkpoint metadata", "id", id, "error", err)
	}
	return nil
}

func (cm *CheckpointManager) cleanupAuto(ctx context.Context) error {
	checkpoints, err := cm.List(ctx)
	if err != nil {
		return err
	}
	kept := 0
	for _, cp := range checkpoints {
		if !cp.IsAuto {
			continue
		}
		kept++
		if kept > maxAutoCheckpoints {
			if err := cm.Delete(ctx, cp.ID); err != nil {
				slog.Debug("Failed to delete old auto-checkpoint", "id", cp.ID, "error", err)
			}
		}
	}
	return nil
}

func verifyIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	tmp := dst + ".tmp"
	destination, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destination, source); err != nil {
		_ = destination.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := destination.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func writeMetadata(path string, info CheckpointInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMetadata(path string) (CheckpointInfo, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return CheckpointInfo{}, err
	}
	var info CheckpointInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return CheckpointInfo{}, err
	}
	return info, nil
}
