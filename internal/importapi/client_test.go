package importapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = service.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

func newTestClient(t *testing.T, handler http.Handler, session *Session) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL + "/api", Retry: fastRetry}, session)
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = NewClient(Config{BaseURL: "not a url"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestClient_GetBatchTransactions(t *testing.T) {
	var sawRequestID, sawAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/imports/batches/7/transactions", r.URL.Path)
		sawRequestID = r.Header.Get(RequestIDHeader)
		sawAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"transactions": [{
			"id": 12, "import_batch_id": 7, "fitid": "F1",
			"date": "2024-01-15T00:00:00", "description": "PIX MERCADO",
			"amount": -50.0, "transaction_type": "DEBIT",
			"predicted_category": "Mercado", "confidence_score": 0.91,
			"confidence_level": "high", "review_status": "pending",
			"reviewed_at": null, "notes": null
		}]}`)
	})

	client := newTestClient(t, handler, NewSession("secret", nil))
	txns, err := client.GetBatchTransactions(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "12", txn.ID)
	assert.Equal(t, "7", txn.BatchID)
	assert.True(t, decimal.NewFromInt(-50).Equal(txn.Amount))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), txn.Date)
	assert.Equal(t, model.StatusPending, txn.ReviewStatus)
	assert.Equal(t, "Mercado", *txn.PredictedCategory)
	assert.Nil(t, txn.ReviewedAt)

	assert.NotEmpty(t, sawRequestID)
	assert.Equal(t, "Bearer secret", sawAuth)
}

func TestClient_ReviewTransaction(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/imports/batches/b1/transactions/t1", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Mercado", body["category"])
		assert.Equal(t, "approved", body["status"])
		assert.Nil(t, body["notes"])

		_, _ = io.WriteString(w, `{"id": "t1", "import_batch_id": "b1", "amount": "-50.00",
			"date": "2024-01-15", "user_category": "Mercado", "review_status": "approved",
			"reviewed_at": "2024-02-01T10:30:00.123456"}`)
	})

	client := newTestClient(t, handler, nil)
	txn, err := client.ReviewTransaction(context.Background(), "b1", "t1", "Mercado", model.StatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, txn.ReviewStatus)
	assert.Equal(t, "Mercado", txn.EffectiveCategory())
	require.NotNil(t, txn.ReviewedAt)
}

func TestClient_ErrorMessagePreserved(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": "Categoria é obrigatória"}`)
	})

	client := newTestClient(t, handler, nil)
	_, err := client.ReviewTransaction(context.Background(), "b1", "t1", "", model.StatusApproved, "")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.Equal(t, "Categoria é obrigatória", common.RemoteMessage(err))

	var remote *common.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.Status)
}

func TestClient_MergeSendsNumericIDs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/imports/merge-duplicates", r.URL.Path)
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"keep_transaction_id": 2, "remove_transaction_ids": [1, 3]}`, string(data))
		_, _ = io.WriteString(w, `{"message": "ok"}`)
	})

	client := newTestClient(t, handler, nil)
	require.NoError(t, client.MergeDuplicates(context.Background(), "2", []string{"1", "3"}))
}

func TestID_MarshalJSON(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{id: "42", want: `42`},
		{id: "-1", want: `-1`},
		{id: "007", want: `"007"`},
		{id: "+5", want: `"+5"`},
		{id: "abc", want: `"abc"`},
		{id: "", want: `""`},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			data, err := json.Marshal(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestClient_MergeKeepsLeadingZeroIDs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"keep_transaction_id": "007", "remove_transaction_ids": [8, "+5"]}`, string(data))
		_, _ = io.WriteString(w, `{"message": "ok"}`)
	})

	client := newTestClient(t, handler, nil)
	require.NoError(t, client.MergeDuplicates(context.Background(), "007", []string{"8", "+5"}))
}

func TestClient_FindDuplicates(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("threshold_days"))
		_, _ = io.WriteString(w, `{"count": 1, "threshold_days": 3, "duplicates": [{
			"amount": -50.0, "description": "MERCADO", "count": 2,
			"transactions": [
				{"id": 1, "amount": -50.0, "date": "2024-01-01T00:00:00", "description": "MERCADO"},
				{"id": 2, "amount": -50.0, "date": "2024-01-02T00:00:00", "description": "MERCADO"}
			]}]}`)
	})

	client := newTestClient(t, handler, nil)
	groups, err := client.FindDuplicates(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, []string{"1", "2"}, model.IDs(groups[0].Transactions))
}

func TestClient_DeleteNotFoundIsSuccess(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error": "Transação não encontrada"}`)
	})

	client := newTestClient(t, handler, nil)
	assert.NoError(t, client.DeleteTransaction(context.Background(), "b1", "gone"))
}

func TestClient_GetBatchNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error": "Lote não encontrado"}`)
	})

	client := newTestClient(t, handler, nil)
	_, err := client.GetBatch(context.Background(), "gone")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestClient_UnauthorizedExpiresSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": "Token expirado"}`)
	})

	var expired atomic.Int32
	session := NewSession("old", func() { expired.Add(1) })
	client := newTestClient(t, handler, session)

	_, err := client.ListBatches(context.Background())
	require.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Equal(t, int32(1), expired.Load(), "401 is not retried")
	assert.False(t, session.Active())

	// Without a token the request never leaves the client.
	_, err = client.ListBatches(context.Background())
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Equal(t, int32(1), expired.Load())
}

func TestClient_RetriesReadsOnly(t *testing.T) {
	tests := []struct {
		call      func(*Client) error
		name      string
		wantCalls int32
	}{
		{
			name:      "get retries server errors",
			call:      func(c *Client) error { _, err := c.ListBatches(context.Background()); return err },
			wantCalls: 3,
		},
		{
			name:      "mutation is sent once",
			call:      func(c *Client) error { return c.MergeDuplicates(context.Background(), "1", []string{"2"}) },
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error": "boom"}`)
			})

			client := newTestClient(t, handler, nil)
			err := tt.call(client)
			require.ErrorIs(t, err, common.ErrRemoteUnavailable)
			assert.Equal(t, "boom", common.RemoteMessage(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_UploadOFX(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/imports/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "extrato.ofx", header.Filename)
		assert.Equal(t, "OFXHEADER:100", string(data))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"batch": {"id": 4, "filename": "extrato.ofx", "status": "review",
			"total_transactions": 1, "processed_transactions": 0, "created_at": "2024-03-01T09:00:00"},
			"pending_transactions": [{"id": 9, "amount": -1.5, "date": "2024-02-28T00:00:00"}],
			"duplicates_skipped": ["F0"]}`)
	})

	client := newTestClient(t, handler, nil)
	res, err := client.UploadOFX(context.Background(), "extrato.ofx", strings.NewReader("OFXHEADER:100"))
	require.NoError(t, err)
	assert.Equal(t, "4", res.Batch.ID)
	assert.Equal(t, model.BatchReview, res.Batch.Status)
	require.Len(t, res.Pending, 1)
	assert.Equal(t, "-1.5", res.Pending[0].Amount.String())
	assert.Equal(t, []string{"F0"}, res.DuplicatesSkipped)
}
