package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus tracks an import batch through processing and review.
type BatchStatus string

// Batch status constants.
const (
	BatchProcessing BatchStatus = "processing"
	BatchReview     BatchStatus = "review"
	BatchCompleted  BatchStatus = "completed"
)

// Batch is a set of transactions imported together from one statement file.
type Batch struct {
	CreatedAt             time.Time   `json:"created_at"`
	PeriodStart           *time.Time  `json:"period_start,omitempty"`
	PeriodEnd             *time.Time  `json:"period_end,omitempty"`
	ID                    string      `json:"id"`
	Filename              string      `json:"filename"`
	InstitutionName       string      `json:"institution_name,omitempty"`
	AccountID             string      `json:"account_id,omitempty"`
	Status                BatchStatus `json:"status"`
	TotalTransactions     int         `json:"total_transactions"`
	ProcessedTransactions int         `json:"processed_transactions"`
}

// DuplicateGroup is a derived cluster of transactions suspected to describe
// the same real-world event. It is never persisted.
type DuplicateGroup struct {
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Transactions []Transaction   `json:"transactions"`
	Count        int             `json:"count"`
}

// Contains reports whether id is a member of the group.
func (g DuplicateGroup) Contains(id string) bool {
	for _, t := range g.Transactions {
		if t.ID == id {
			return true
		}
	}
	return false
}

// MergePlan is the keep/remove decision for a duplicate group before it is applied.
type MergePlan struct {
	KeepID    string   `json:"keep_transaction_id"`
	RemoveIDs []string `json:"remove_transaction_ids"`
}
