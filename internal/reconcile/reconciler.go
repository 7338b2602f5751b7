// Package reconcile keeps a reviewer's working view of an import batch and its
// duplicate groups in step with the import service. Every successful mutation
// is followed by a full refetch; local state is never patched optimistically.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/dedup"
	"github.com/Veraticus/spice-reconcile/internal/merge"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/review"
	"github.com/Veraticus/spice-reconcile/internal/service"
)

// Config tunes a Reconciler.
type Config struct {
	ThresholdDays int
	AllowReReview bool
}

// Reconciler owns the transaction list, duplicate groups, keep selection and
// category drafts of one reviewing workflow. The mutex is never held across a
// call to the import service.
type Reconciler struct {
	svc       service.ImportService
	selection *merge.Selection
	drafts    *review.Drafts
	batchID   string
	txns      []model.Transaction
	groups    []model.DuplicateGroup
	machine   review.Machine
	threshold int
	batchGen  uint64
	groupGen  uint64
	mu        sync.Mutex
}

// New creates a Reconciler over an import service.
func New(svc service.ImportService, cfg Config) *Reconciler {
	threshold := cfg.ThresholdDays
	if threshold <= 0 {
		threshold = dedup.DefaultThresholdDays
	}
	return &Reconciler{
		svc:       svc,
		selection: merge.NewSelection(),
		drafts:    review.NewDrafts(nil),
		machine:   review.Machine{AllowReReview: cfg.AllowReReview},
		threshold: threshold,
	}
}

// ListDuplicateGroups groups transactions locally without touching the
// import service or the Reconciler's state.
func ListDuplicateGroups(transactions []model.Transaction, thresholdDays int) ([]model.DuplicateGroup, error) {
	return dedup.FindDuplicates(transactions, dedup.Options{ThresholdDays: thresholdDays})
}

// LoadBatch fetches a batch's transactions and reseeds category drafts.
func (r *Reconciler) LoadBatch(ctx context.Context, batchID string) error {
	r.mu.Lock()
	r.batchGen++
	gen := r.batchGen
	r.mu.Unlock()

	txns, err := r.svc.GetBatchTransactions(ctx, batchID)
	if err != nil {
		return wrapRemote("load batch", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.batchGen {
		slog.Debug("Discarding stale batch response", "batch_id", batchID, "generation", gen)
		return common.ErrStaleResponse
	}
	r.batchID = batchID
	r.txns = txns
	r.drafts.Reset(txns)
	return nil
}

// LoadDuplicates fetches duplicate groups and clears the keep selection.
func (r *Reconciler) LoadDuplicates(ctx context.Context, thresholdDays int) error {
	if thresholdDays <= 0 {
		return fmt.Errorf("%w: got %d", common.ErrInvalidThreshold, thresholdDays)
	}

	r.mu.Lock()
	r.groupGen++
	gen := r.groupGen
	r.threshold = thresholdDays
	r.mu.Unlock()

	groups, err := r.svc.FindDuplicates(ctx, thresholdDays)
	if err != nil {
		return wrapRemote("find duplicates", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.groupGen {
		slog.Debug("Discarding stale duplicates response", "threshold_days", thresholdDays, "generation", gen)
		return common.ErrStaleResponse
	}
	r.groups = groups
	r.selection.Clear()
	return nil
}

// SelectKeep records which transaction of a group survives a merge.
func (r *Reconciler) SelectKeep(groupIndex int, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if groupIndex < 0 || groupIndex >= len(r.groups) {
		return fmt.Errorf("%w: %d", common.ErrGroupOutOfRange, groupIndex)
	}
	if !r.groups[groupIndex].Contains(transactionID) {
		return fmt.Errorf("%w: %q", common.ErrKeepNotInGroup, transactionID)
	}
	r.selection.Select(groupIndex, transactionID)
	return nil
}

// SetCategory drafts a category for a transaction ahead of review.
func (r *Reconciler) SetCategory(transactionID, category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts.Set(transactionID, category)
}

// PlanMerge resolves the merge plan for a group from the current selection.
func (r *Reconciler) PlanMerge(groupIndex int) (model.MergePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if groupIndex < 0 || groupIndex >= len(r.groups) {
		return model.MergePlan{}, fmt.Errorf("%w: %d", common.ErrGroupOutOfRange, groupIndex)
	}
	keepID, ok := r.selection.Keep(groupIndex)
	if !ok {
		return model.MergePlan{}, common.ErrNoKeepSelected
	}
	return merge.Resolve(r.groups[groupIndex], keepID)
}

// ConfirmMerge applies the selected merge for a group, then refetches the
// duplicate groups. The refetch is only issued once the merge has resolved.
func (r *Reconciler) ConfirmMerge(ctx context.Context, groupIndex int) (model.MergePlan, error) {
	plan, err := r.PlanMerge(groupIndex)
	if err != nil {
		return model.MergePlan{}, err
	}

	if err := r.ApplyMerge(ctx, plan); err != nil {
		return model.MergePlan{}, err
	}

	r.mu.Lock()
	threshold := r.threshold
	r.mu.Unlock()

	if err := r.LoadDuplicates(ctx, threshold); err != nil && !errors.Is(err, common.ErrStaleResponse) {
		return plan, fmt.Errorf("merge applied but refresh failed: %w", err)
	}
	return plan, nil
}

// ApplyMerge sends a validated plan to the import service.
func (r *Reconciler) ApplyMerge(ctx context.Context, plan model.MergePlan) error {
	if err := merge.ValidatePlan(plan); err != nil {
		return err
	}

	if err := r.svc.MergeDuplicates(ctx, plan.KeepID, plan.RemoveIDs); err != nil {
		return wrapRemote("merge duplicates", err)
	}

	slog.Info("Merged duplicates",
		"keep_id", plan.KeepID,
		"removed", len(plan.RemoveIDs))
	return nil
}

// ReviewOne reviews a transaction of the loaded batch and refetches the batch.
// An empty category falls back to the drafted one.
func (r *Reconciler) ReviewOne(ctx context.Context, transactionID, category string, status model.ReviewStatus) (model.Transaction, error) {
	r.mu.Lock()
	if category == "" {
		category, _ = r.drafts.Get(transactionID)
	}
	batchID := r.batchID
	current, known := r.find(transactionID)
	r.mu.Unlock()

	if err := review.Validate(category, status); err != nil {
		return model.Transaction{}, err
	}
	if known {
		if err := r.machine.CanTransition(current); err != nil {
			return model.Transaction{}, err
		}
	}

	updated, err := r.ApplyReview(ctx, batchID, transactionID, category, status)
	if err != nil {
		return model.Transaction{}, err
	}

	if err := r.LoadBatch(ctx, batchID); err != nil && !errors.Is(err, common.ErrStaleResponse) {
		return updated, fmt.Errorf("review applied but refresh failed: %w", err)
	}
	return updated, nil
}

// ApplyReview validates and sends a review to the import service.
func (r *Reconciler) ApplyReview(ctx context.Context, batchID, transactionID, category string, status model.ReviewStatus) (model.Transaction, error) {
	if err := review.Validate(category, status); err != nil {
		return model.Transaction{}, err
	}

	updated, err := r.svc.ReviewTransaction(ctx, batchID, transactionID, category, status, "")
	if err != nil {
		return model.Transaction{}, wrapRemote("review transaction", err)
	}

	slog.Info("Reviewed transaction",
		"transaction_id", transactionID,
		"category", category,
		"status", status)
	return updated, nil
}

// DeleteOne removes a transaction from the loaded batch and refetches both the
// batch and, when groups are loaded, the duplicate groups.
func (r *Reconciler) DeleteOne(ctx context.Context, transactionID string) error {
	r.mu.Lock()
	batchID := r.batchID
	threshold := r.threshold
	haveGroups := r.groups != nil
	target := batchID
	if txn, ok := r.findInGroups(transactionID); ok && txn.BatchID != "" && !r.inBatch(transactionID) {
		target = txn.BatchID
	}
	r.mu.Unlock()

	if err := r.svc.DeleteTransaction(ctx, target, transactionID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return wrapRemote("delete transaction", err)
	}

	if batchID != "" {
		if err := r.LoadBatch(ctx, batchID); err != nil && !errors.Is(err, common.ErrStaleResponse) {
			return fmt.Errorf("delete applied but refresh failed: %w", err)
		}
	}
	if haveGroups {
		if err := r.LoadDuplicates(ctx, threshold); err != nil && !errors.Is(err, common.ErrStaleResponse) {
			return fmt.Errorf("delete applied but refresh failed: %w", err)
		}
	}
	return nil
}

// Transactions returns a copy of the loaded batch transactions.
func (r *Reconciler) Transactions() []model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Transaction(nil), r.txns...)
}

// Groups returns a copy of the loaded duplicate groups.
func (r *Reconciler) Groups() []model.DuplicateGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.DuplicateGroup(nil), r.groups...)
}

// Selection returns a copy of the keep selection.
func (r *Reconciler) Selection() map[int]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selection.Snapshot()
}

// Drafts returns a copy of the category drafts.
func (r *Reconciler) Drafts() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drafts.Snapshot()
}

// Threshold returns the threshold of the last duplicate query.
func (r *Reconciler) Threshold() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threshold
}

// BatchID returns the loaded batch id.
func (r *Reconciler) BatchID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchID
}

func (r *Reconciler) find(id string) (model.Transaction, bool) {
	for _, t := range r.txns {
		if t.ID == id {
			return t, true
		}
	}
	return model.Transaction{}, false
}

func (r *Reconciler) inBatch(id string) bool {
	_, ok := r.find(id)
	return ok
}

// findInGroups locates a duplicate group member, which may belong to a batch
// other than the loaded one.
func (r *Reconciler) findInGroups(id string) (model.Transaction, bool) {
	for _, g := range r.groups {
		for _, t := range g.Transactions {
			if t.ID == id {
				return t, true
			}
		}
	}
	return model.Transaction{}, false
}

// wrapRemote makes every collaborator failure match ErrRemoteUnavailable while
// keeping the collaborator's own message reachable through RemoteMessage.
func wrapRemote(op string, err error) error {
	if errors.Is(err, common.ErrRemoteUnavailable) || common.IsValidation(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, common.NewRemoteError(0, err.Error(), err))
}
