package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/dedup"
	"github.com/Veraticus/spice-reconcile/internal/merge"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, import_batch_id, fitid, date, description, amount, transaction_type,
	predicted_category, user_category, confidence_score, confidence_level,
	review_status, reviewed_at, notes`

// GetBatchTransactions returns a batch's transactions ordered by date. An
// unknown batch has no transactions.
func (s *SQLiteStorage) GetBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM pending_transactions
		WHERE import_batch_id = ?
		ORDER BY date ASC, rowid ASC`, batchID)
}

// ReviewTransaction applies a review under the same rules as review.Machine
// and completes the batch when nothing in it remains pending.
func (s *SQLiteStorage) ReviewTransaction(ctx context.Context, batchID, transactionID, category string, status model.ReviewStatus, notes string) (model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return model.Transaction{}, err
	}

	var updated model.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTransactionTx(ctx, tx, batchID, transactionID)
		if err != nil {
			return err
		}

		updated, err = s.machine.Transition(current, category, status)
		if err != nil {
			return err
		}
		updated.Notes = notes

		if _, err := tx.ExecContext(ctx, `
			UPDATE pending_transactions
			SET user_category = ?, review_status = ?, reviewed_at = ?, notes = ?
			WHERE id = ?`,
			updated.UserCategory, string(updated.ReviewStatus), *updated.ReviewedAt, model.StringPtr(notes), transactionID,
		); err != nil {
			return fmt.Errorf("failed to update transaction %s: %w", transactionID, err)
		}

		return completeBatchIfReviewed(ctx, tx, updated.BatchID)
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return updated, nil
}

// DeleteTransaction removes a transaction. An empty batchID matches any batch.
// A missing transaction yields common.ErrNotFound.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, batchID, transactionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTransactionTx(ctx, tx, batchID, transactionID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_transactions WHERE id = ?`, transactionID); err != nil {
			return fmt.Errorf("failed to delete transaction %s: %w", transactionID, err)
		}
		return completeBatchIfReviewed(ctx, tx, current.BatchID)
	})
}

// FindDuplicates groups every pending transaction, across all batches.
func (s *SQLiteStorage) FindDuplicates(ctx context.Context, thresholdDays int) ([]model.DuplicateGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	opts := dedup.Options{ThresholdDays: thresholdDays, MinSimilarity: s.opts.MinSimilarity}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	txns, err := s.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM pending_transactions
		WHERE review_status = ?
		ORDER BY date ASC, rowid ASC`, string(model.StatusPending))
	if err != nil {
		return nil, err
	}
	return dedup.FindDuplicates(txns, opts)
}

// MergeDuplicates deletes removeIDs in one transaction after checking that
// keepID exists. Remove ids that are already gone are ignored.
func (s *SQLiteStorage) MergeDuplicates(ctx context.Context, keepID string, removeIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := merge.ValidatePlan(model.MergePlan{KeepID: keepID, RemoveIDs: removeIDs}); err != nil {
		return err
	}

	removed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTransactionTx(ctx, tx, "", keepID); err != nil {
			return err
		}

		batches := make(map[string]bool)
		for _, id := range removeIDs {
			var batchID string
			err := tx.QueryRowContext(ctx,
				`DELETE FROM pending_transactions WHERE id = ? RETURNING import_batch_id`, id).Scan(&batchID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to delete duplicate %s: %w", id, err)
			}
			batches[batchID] = true
			removed++
		}

		for batchID := range batches {
			if err := completeBatchIfReviewed(ctx, tx, batchID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Merged duplicates", "keep_id", keepID, "removed", removed)
	return nil
}

func getTransactionTx(ctx context.Context, tx *sql.Tx, batchID, transactionID string) (model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM pending_transactions WHERE id = ?`
	args := []any{transactionID}
	if batchID != "" {
		query += ` AND import_batch_id = ?`
		args = append(args, batchID)
	}

	txn, err := scanTransaction(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return txn, err
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	txns := []model.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}

func scanTransaction(row scanner) (model.Transaction, error) {
	var (
		txn                    model.Transaction
		fitid, txnType, level  sql.NullString
		predicted, user, notes sql.NullString
		amount, status         string
		score                  sql.NullFloat64
		reviewedAt             sql.NullTime
	)
	if err := row.Scan(
		&txn.ID, &txn.BatchID, &fitid, &txn.Date, &txn.Description, &amount, &txnType,
		&predicted, &user, &score, &level, &status, &reviewedAt, &notes,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transaction{}, err
		}
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s has invalid amount %q: %w", txn.ID, amount, err)
	}

	txn.Amount = parsed
	txn.Date = txn.Date.UTC()
	txn.FITID = fitid.String
	txn.Type = txnType.String
	txn.ConfidenceLevel = level.String
	txn.Notes = notes.String
	txn.ReviewStatus = model.ReviewStatus(status)
	txn.ReviewedAt = timePtr(reviewedAt)
	if predicted.Valid {
		txn.PredictedCategory = model.StringPtr(predicted.String)
	}
	if user.Valid {
		txn.UserCategory = model.StringPtr(user.String)
	}
	if score.Valid {
		v := score.Float64
		txn.ConfidenceScore = &v
	}
	return txn, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
