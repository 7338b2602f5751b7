// Package importer turns OFX/QFX statement files into stored import batches
// with predicted categories.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Veraticus/spice-reconcile/internal/classify"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/ofx"
	"github.com/Veraticus/spice-reconcile/internal/storage"
)

var (
	// ErrUnsupportedFile is returned for files that are not .ofx or .qfx.
	ErrUnsupportedFile = errors.New("extension not allowed")
	// ErrInvalidStatement is returned when a statement file cannot be parsed.
	ErrInvalidStatement = errors.New("invalid statement file")
)

var allowedExtensions = map[string]bool{".ofx": true, ".qfx": true}

// Store persists batches and supplies reviewed history for training.
type Store interface {
	SaveBatch(ctx context.Context, batch model.Batch, transactions []model.Transaction) (storage.ImportResult, error)
	TrainingExamples(ctx context.Context) ([]model.Transaction, error)
}

// Importer parses statements and saves them as pending batches.
type Importer struct {
	store     Store
	parser    *ofx.Parser
	predictor *classify.Predictor
}

// New creates an importer. A nil predictor starts untrained.
func New(store Store, predictor *classify.Predictor) *Importer {
	if predictor == nil {
		predictor = classify.NewPredictor()
	}
	return &Importer{
		store:     store,
		parser:    ofx.NewParser(),
		predictor: predictor,
	}
}

// Supported reports whether filename has a statement extension.
func Supported(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Retrain refreshes the category predictor from reviewed transactions.
func (i *Importer) Retrain(ctx context.Context) error {
	examples, err := i.store.TrainingExamples(ctx)
	if err != nil {
		return err
	}
	if err := i.predictor.Train(examples); err != nil {
		if errors.Is(err, classify.ErrTooFewCategories) {
			slog.Debug("Category predictor disabled", "examples", len(examples))
			return nil
		}
		return err
	}
	return nil
}

// Import parses one statement, predicts categories from the reviewed history
// and stores the result as a new batch.
func (i *Importer) Import(ctx context.Context, filename string, r io.Reader) (storage.ImportResult, error) {
	filename = filepath.Base(filename)
	if !Supported(filename) {
		return storage.ImportResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}

	stmt, err := i.parser.Parse(ctx, r)
	if err != nil {
		return storage.ImportResult{}, fmt.Errorf("%w: %w", ErrInvalidStatement, err)
	}

	if err := i.Retrain(ctx); err != nil {
		slog.Warn("Failed to train category predictor", "error", err)
	}

	batch := model.Batch{
		Filename:        filename,
		InstitutionName: stmt.InstitutionName,
		AccountID:       stmt.AccountID,
		PeriodStart:     stmt.PeriodStart,
		PeriodEnd:       stmt.PeriodEnd,
	}
	result, err := i.store.SaveBatch(ctx, batch, i.predictor.Apply(stmt.Transactions))
	if err != nil {
		return storage.ImportResult{}, err
	}

	slog.Info("Imported statement",
		"batch_id", result.Batch.ID,
		"filename", filename,
		"pending", len(result.Pending),
		"duplicates_skipped", len(result.DuplicatesSkipped))
	return result, nil
}
