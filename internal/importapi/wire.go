package importapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/shopspring/decimal"
)

// ID accepts ids encoded as JSON numbers or strings. Ids in canonical
// integer form are written back as numbers so integer-keyed services accept
// them; anything else, "007" included, stays a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func toIDs(ids []string) []ID {
	out := make([]ID, len(ids))
	for i, id := range ids {
		out[i] = ID(id)
	}
	return out
}

// wireTime reads the service's naive ISO timestamps.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := format.ParseDate(*s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t wireTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type wireTransaction struct {
	ConfidenceScore   *float64        `json:"confidence_score"`
	PredictedCategory *string         `json:"predicted_category"`
	UserCategory      *string         `json:"user_category"`
	Notes             *string         `json:"notes"`
	Date              wireTime        `json:"date"`
	ReviewedAt        wireTime        `json:"reviewed_at"`
	Amount            decimal.Decimal `json:"amount"`
	ID                ID              `json:"id"`
	BatchID           ID              `json:"import_batch_id"`
	FITID             string          `json:"fitid"`
	Description       string          `json:"description"`
	Type              string          `json:"transaction_type"`
	ConfidenceLevel   string          `json:"confidence_level"`
	ReviewStatus      string          `json:"review_status"`
}

func (w wireTransaction) model() model.Transaction {
	txn := model.Transaction{
		ID:                string(w.ID),
		BatchID:           string(w.BatchID),
		FITID:             w.FITID,
		Date:              w.Date.Time,
		Description:       w.Description,
		Amount:            w.Amount,
		Type:              w.Type,
		PredictedCategory: w.PredictedCategory,
		UserCategory:      w.UserCategory,
		ConfidenceScore:   w.ConfidenceScore,
		ConfidenceLevel:   w.ConfidenceLevel,
		ReviewStatus:      model.ParseReviewStatus(w.ReviewStatus),
		ReviewedAt:        w.ReviewedAt.ptr(),
	}
	if w.Notes != nil {
		txn.Notes = *w.Notes
	}
	if txn.ReviewStatus == "" {
		txn.ReviewStatus = model.StatusPending
	}
	return txn
}

func modelTransactions(in []wireTransaction) []model.Transaction {
	out := make([]model.Transaction, len(in))
	for i, w := range in {
		out[i] = w.model()
	}
	return out
}

type wireBatch struct {
	CreatedAt             wireTime `json:"created_at"`
	PeriodStart           wireTime `json:"period_start"`
	PeriodEnd             wireTime `json:"period_end"`
	ID                    ID       `json:"id"`
	Filename              string   `json:"filename"`
	InstitutionName       string   `json:"institution_name"`
	AccountID             string   `json:"account_id"`
	Status                string   `json:"status"`
	TotalTransactions     int      `json:"total_transactions"`
	ProcessedTransactions int      `json:"processed_transactions"`
}

func (w wireBatch) model() model.Batch {
	return model.Batch{
		ID:                    string(w.ID),
		Filename:              w.Filename,
		InstitutionName:       w.InstitutionName,
		AccountID:             w.AccountID,
		Status:                model.BatchStatus(w.Status),
		PeriodStart:           w.PeriodStart.ptr(),
		PeriodEnd:             w.PeriodEnd.ptr(),
		TotalTransactions:     w.TotalTransactions,
		ProcessedTransactions: w.ProcessedTransactions,
		CreatedAt:             w.CreatedAt.Time,
	}
}

type wireGroup struct {
	Amount       decimal.Decimal   `json:"amount"`
	Description  string            `json:"description"`
	Transactions []wireTransaction `json:"transactions"`
	Count        int               `json:"count"`
}

type reviewRequest struct {
	Notes    *string `json:"notes"`
	Category string  `json:"category"`
	Status   string  `json:"status"`
}

type mergeRequest struct {
	KeepID    ID   `json:"keep_transaction_id"`
	RemoveIDs []ID `json:"remove_transaction_ids"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// UploadResult is the service's answer to a statement upload.
type UploadResult struct {
	Batch             model.Batch
	Pending           []model.Transaction
	DuplicatesSkipped []string
}

type uploadResponse struct {
	Batch             wireBatch         `json:"batch"`
	Pending           []wireTransaction `json:"pending_transactions"`
	DuplicatesSkipped []string          `json:"duplicates_skipped"`
}
