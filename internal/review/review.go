// Package review implements the per-transaction review lifecycle:
// pending -> approved | rejected, with a category required before either
// terminal transition.
package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
)

// Machine applies review transitions.
type Machine struct {
	// Now stamps ReviewedAt. Defaults to time.Now.
	Now func() time.Time
	// AllowReReview permits reviewing a transaction that is already approved
	// or rejected. Off by default: terminal states are final.
	AllowReReview bool
}

// Validate checks the transition arguments without looking at any transaction.
func Validate(category string, status model.ReviewStatus) error {
	if strings.TrimSpace(category) == "" {
		return common.ErrMissingCategory
	}
	if !status.Terminal() {
		return fmt.Errorf("%w: %q", common.ErrInvalidStatus, status)
	}
	return nil
}

// CanTransition reports whether txn may be reviewed again under this machine.
func (m Machine) CanTransition(txn model.Transaction) error {
	if txn.ReviewStatus.Terminal() && !m.AllowReReview {
		return fmt.Errorf("%w: %s is %s", common.ErrAlreadyReviewed, txn.ID, txn.ReviewStatus)
	}
	return nil
}

// Transition returns a copy of txn with the reviewer's category and status
// applied. The predicted category is never touched. On error txn is returned
// unchanged.
func (m Machine) Transition(txn model.Transaction, category string, status model.ReviewStatus) (model.Transaction, error) {
	if err := Validate(category, status); err != nil {
		return txn, err
	}
	if err := m.CanTransition(txn); err != nil {
		return txn, err
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	reviewedAt := now()

	out := txn
	out.UserCategory = model.StringPtr(strings.TrimSpace(category))
	out.ReviewStatus = status
	out.ReviewedAt = &reviewedAt
	return out, nil
}

// Stats counts transactions per review status.
type Stats struct {
	Total    int
	Pending  int
	Approved int
	Rejected int
}

// Summarize counts txns by review status.
func Summarize(txns []model.Transaction) Stats {
	stats := Stats{Total: len(txns)}
	for _, t := range txns {
		switch t.ReviewStatus {
		case model.StatusPending:
			stats.Pending++
		case model.StatusApproved:
			stats.Approved++
		case model.StatusRejected:
			stats.Rejected++
		}
	}
	return stats
}

// Filter keeps transactions matching status (empty or "all" matches any) whose
// description contains search, case-insensitively.
func Filter(txns []model.Transaction, status model.ReviewStatus, search string) []model.Transaction {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		if status != "" && status != "all" && t.ReviewStatus != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	return out
}
