package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/google/uuid"
)

// ImportResult describes a stored statement import.
type ImportResult struct {
	Batch             model.Batch         `json:"batch"`
	Pending           []model.Transaction `json:"pending_transactions"`
	DuplicatesSkipped []string            `json:"duplicates_skipped"`
}

// SaveBatch stores a new batch with its transactions. Transactions whose FITID
// is already known, or repeated within the same import, are skipped and their
// FITIDs reported.
func (s *SQLiteStorage) SaveBatch(ctx context.Context, batch model.Batch, transactions []model.Transaction) (ImportResult, error) {
	if err := validateContext(ctx); err != nil {
		return ImportResult{}, err
	}
	if err := validateBatch(batch); err != nil {
		return ImportResult{}, err
	}
	for i, txn := range transactions {
		if err := validateTransaction(txn); err != nil {
			return ImportResult{}, fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}

	batch.ID = uuid.NewString()
	batch.CreatedAt = s.now()
	batch.TotalTransactions = len(transactions)
	batch.Status = model.BatchReview

	result := ImportResult{DuplicatesSkipped: []string{}}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		known, err := knownFITIDs(ctx, tx, transactions)
		if err != nil {
			return err
		}

		var pending []model.Transaction
		for _, txn := range transactions {
			if txn.FITID != "" {
				if known[txn.FITID] {
					result.DuplicatesSkipped = append(result.DuplicatesSkipped, txn.FITID)
					continue
				}
				known[txn.FITID] = true
			}

			txn.ID = uuid.NewString()
			txn.BatchID = batch.ID
			txn.ReviewStatus = model.StatusPending
			txn.UserCategory = nil
			txn.ReviewedAt = nil
			pending = append(pending, txn)
		}
		batch.ProcessedTransactions = len(pending)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO import_batches (
				id, filename, institution_name, account_id, status,
				period_start, period_end, total_transactions, processed_transactions, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.ID, batch.Filename, batch.InstitutionName, batch.AccountID, string(batch.Status),
			nullTime(batch.PeriodStart), nullTime(batch.PeriodEnd),
			batch.TotalTransactions, batch.ProcessedTransactions, batch.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pending_transactions (
				id, import_batch_id, fitid, date, description, amount, transaction_type,
				predicted_category, confidence_score, confidence_level, review_status, notes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range pending {
			if _, err := stmt.ExecContext(ctx,
				txn.ID, txn.BatchID, txn.FITID, txn.Date.UTC(), txn.Description, txn.Amount.String(), txn.Type,
				txn.PredictedCategory, txn.ConfidenceScore, txn.ConfidenceLevel, string(txn.ReviewStatus),
				model.StringPtr(txn.Notes),
			); err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.FITID, err)
			}
		}

		result.Pending = pending
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	if result.Pending == nil {
		result.Pending = []model.Transaction{}
	}
	result.Batch = batch

	slog.Info("Stored import batch",
		"batch_id", batch.ID,
		"filename", batch.Filename,
		"pending", len(result.Pending),
		"skipped", len(result.DuplicatesSkipped))
	return result, nil
}

func knownFITIDs(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) (map[string]bool, error) {
	known := make(map[string]bool)

	var fitids []any
	for _, txn := range transactions {
		if txn.FITID != "" {
			fitids = append(fitids, txn.FITID)
		}
	}
	if len(fitids) == 0 {
		return known, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fitids)), ",")
	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT fitid FROM pending_transactions WHERE fitid IN (`+placeholders+`)`, fitids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query known FITIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var fitid string
		if err := rows.Scan(&fitid); err != nil {
			return nil, fmt.Errorf("failed to scan FITID: %w", err)
		}
		known[fitid] = true
	}
	return known, rows.Err()
}

// ListBatches returns every batch, newest first.
func (s *SQLiteStorage) ListBatches(ctx context.Context) ([]model.Batch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM import_batches ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	batches := []model.Batch{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// GetBatch returns a batch, or common.ErrNotFound.
func (s *SQLiteStorage) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, batchID)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", batchID, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// DeleteBatch removes a batch and all of its transactions.
func (s *SQLiteStorage) DeleteBatch(ctx context.Context, batchID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_transactions WHERE import_batch_id = ?`, batchID); err != nil {
			return fmt.Errorf("failed to delete batch transactions: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM import_batches WHERE id = ?`, batchID)
		if err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("batch %s: %w", batchID, common.ErrNotFound)
		}
		return nil
	})
}

// TrainingExamples returns approved transactions that carry a reviewer's
// category, oldest first.
func (s *SQLiteStorage) TrainingExamples(ctx context.Context) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM pending_transactions
		WHERE review_status = ? AND user_category IS NOT NULL AND user_category != ''
		ORDER BY date ASC, rowid ASC`, string(model.StatusApproved))
}

// completeBatchIfReviewed marks a batch completed once nothing in it is pending.
func completeBatchIfReviewed(ctx context.Context, tx *sql.Tx, batchID string) error {
	var pending int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_transactions WHERE import_batch_id = ? AND review_status = ?`,
		batchID, string(model.StatusPending),
	).Scan(&pending); err != nil {
		return fmt.Errorf("failed to count pending transactions: %w", err)
	}
	if pending > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE import_batches SET status = ? WHERE id = ?`, string(model.BatchCompleted), batchID,
	); err != nil {
		return fmt.Errorf("failed to complete batch: %w", err)
	}
	slog.Debug("Batch review completed", "batch_id", batchID)
	return nil
}

const batchColumns = `id, filename, institution_name, account_id, status, period_start, period_end,
	total_transactions, processed_transactions, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (model.Batch, error) {
	var (
		batch                  model.Batch
		institution, account   sql.NullString
		status                 string
		periodStart, periodEnd sql.NullTime
	)
	if err := row.Scan(
		&batch.ID, &batch.Filename, &institution, &account, &status, &periodStart, &periodEnd,
		&batch.TotalTransactions, &batch.ProcessedTransactions, &batch.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Batch{}, err
		}
		return model.Batch{}, fmt.Errorf("failed to scan batch: %w", err)
	}

	batch.InstitutionName = institution.String
	batch.AccountID = account.String
	batch.Status = model.BatchStatus(status)
	batch.PeriodStart = timePtr(periodStart)
	batch.PeriodEnd = timePtr(periodEnd)
	batch.CreatedAt = batch.CreatedAt.UTC()
	return batch, nil
}
