package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/importapi"
	"github.com/Veraticus/spice-reconcile/internal/importer"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/storage"
)

var errBadRequest = errors.New("bad request")

type reviewRequest struct {
	Notes    *string `json:"notes"`
	Category string  `json:"category"`
	Status   string  `json:"status"`
}

type mergeRequest struct {
	KeepID    importapi.ID   `json:"keep_transaction_id"`
	RemoveIDs []importapi.ID `json:"remove_transaction_ids"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid upload: %w", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: OFX file not sent", errBadRequest))
		return
	}
	defer func() { _ = file.Close() }()

	filename := filepath.Base(header.Filename)

	result, err := s.importer.Import(r.Context(), filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.backend.ListBatches(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.backend.GetBatch(r.Context(), r.PathValue("batchID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) deleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteBatch(r.Context(), r.PathValue("batchID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "batch deleted"})
}

func (s *Server) batchTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.backend.GetBatchTransactions(r.Context(), r.PathValue("batchID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (s *Server) reviewTransaction(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}

	// A bare category approves.
	status := model.ParseReviewStatus(req.Status)
	if status == "" {
		status = model.StatusApproved
	}
	var notes string
	if req.Notes != nil {
		notes = *req.Notes
	}

	txn, err := s.backend.ReviewTransaction(r.Context(),
		r.PathValue("batchID"), r.PathValue("transactionID"),
		strings.TrimSpace(req.Category), status, notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	err := s.backend.DeleteTransaction(r.Context(), r.PathValue("batchID"), r.PathValue("transactionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "transaction deleted"})
}

func (s *Server) findDuplicates(w http.ResponseWriter, r *http.Request) {
	threshold := s.cfg.ThresholdDays
	if raw := r.URL.Query().Get("threshold_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %q", common.ErrInvalidThreshold, raw))
			return
		}
		threshold = n
	}

	groups, err := s.backend.FindDuplicates(r.Context(), threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []model.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"duplicates":     groups,
		"count":          len(groups),
		"threshold_days": threshold,
	})
}

func (s *Server) mergeDuplicates(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}

	removeIDs := make([]string, len(req.RemoveIDs))
	for i, id := range req.RemoveIDs {
		removeIDs[i] = string(id)
	}

	if err := s.backend.MergeDuplicates(r.Context(), string(req.KeepID), removeIDs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":             "duplicates removed",
		"kept_transaction_id": req.KeepID,
		"removed_count":       len(removeIDs),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err to a status code and writes {"error": message}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Header.Get(importapi.RequestIDHeader),
			"error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrAlreadyReviewed):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, importer.ErrUnsupportedFile),
		errors.Is(err, importer.ErrInvalidStatement),
		common.IsValidation(err),
		storage.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
