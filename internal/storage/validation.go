// Package storage is the local SQLite-backed import service.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-reconcile/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidBatch       = errors.New("invalid batch")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateBatch(batch model.Batch) error {
	if strings.TrimSpace(batch.Filename) == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidBatch)
	}
	return nil
}

// validateTransaction checks a transaction before it is stored.
func validateTransaction(txn model.Transaction) error {
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if txn.ReviewStatus != "" && !txn.ReviewStatus.Valid() {
		return fmt.Errorf("%w: review status %q", ErrInvalidTransaction, txn.ReviewStatus)
	}
	return nil
}

// IsValidation reports whether err was caused by invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyString) ||
		errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrInvalidBatch)
}
