// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/model"
)

// ImportService is the import collaborator the reconciliation core depends on.
// It is the single source of truth for batches and their transactions.
type ImportService interface {
	// GetBatchTransactions returns the authoritative transaction list of a batch.
	GetBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error)
	// ReviewTransaction records a category and terminal status for a transaction.
	ReviewTransaction(ctx context.Context, batchID, transactionID, category string, status model.ReviewStatus, notes string) (model.Transaction, error)
	// DeleteTransaction removes a transaction. Deleting a missing id is not an error.
	DeleteTransaction(ctx context.Context, batchID, transactionID string) error
	// FindDuplicates returns duplicate groups computed over pending transactions.
	FindDuplicates(ctx context.Context, thresholdDays int) ([]model.DuplicateGroup, error)
	// MergeDuplicates keeps one transaction and atomically removes the others.
	MergeDuplicates(ctx context.Context, keepID string, removeIDs []string) error
}

// BatchService exposes batch-level operations beyond the reconciliation core.
type BatchService interface {
	ListBatches(ctx context.Context) ([]model.Batch, error)
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	DeleteBatch(ctx context.Context, batchID string) error
}

// Backend is everything the CLI needs from either the local or remote service.
type Backend interface {
	ImportService
	BatchService
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
