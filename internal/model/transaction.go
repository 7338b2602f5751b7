// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReviewStatus is the human-approval state of an imported transaction.
type ReviewStatus string

// Review status constants.
const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusRejected ReviewStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further review transition is expected.
func (s ReviewStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseReviewStatus normalizes user input into a ReviewStatus. The result is
// not validated; callers decide which statuses they accept.
func ParseReviewStatus(s string) ReviewStatus {
	return ReviewStatus(strings.ToLower(strings.TrimSpace(s)))
}

// Transaction is an imported bank transaction awaiting or past review.
type Transaction struct {
	Date              time.Time       `json:"date"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty"`
	PredictedCategory *string         `json:"predicted_category"`
	UserCategory      *string         `json:"user_category"`
	ConfidenceScore   *float64        `json:"confidence_score,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	ID                string          `json:"id"`
	BatchID           string          `json:"import_batch_id"`
	FITID             string          `json:"fitid,omitempty"`
	Description       string          `json:"description"`
	Type              string          `json:"transaction_type,omitempty"`
	ConfidenceLevel   string          `json:"confidence_level,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	ReviewStatus      ReviewStatus    `json:"review_status"`
}

// EffectiveCategory returns the reviewer's category when set, otherwise the
// predicted one, otherwise the empty string.
func (t Transaction) EffectiveCategory() string {
	if t.UserCategory != nil && *t.UserCategory != "" {
		return *t.UserCategory
	}
	if t.PredictedCategory != nil {
		return *t.PredictedCategory
	}
	return ""
}

// IsDebit reports whether the transaction moves money out of the account.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IDs returns the ids of txns in order.
func IDs(txns []Transaction) []string {
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	return ids
}
