// Package server exposes the local import service over HTTP using the same
// routes and JSON shapes the importapi client speaks.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/classify"
	"github.com/Veraticus/spice-reconcile/internal/importer"
	"github.com/Veraticus/spice-reconcile/internal/service"
)

const (
	defaultThresholdDays = 3
	maxUploadSize        = 32 << 20
)

// Backend is the store the server serves from.
type Backend interface {
	service.Backend
	importer.Store
}

// Config configures a Server.
type Config struct {
	// Token, when set, is the bearer token every /api request must carry.
	Token string
	// ThresholdDays is used when a duplicates request names none.
	ThresholdDays int
}

// Server serves the import API.
type Server struct {
	backend  Backend
	importer *importer.Importer
	mux      *http.ServeMux
	cfg      Config
}

// New creates a new server with all routes registered.
func New(backend Backend, predictor *classify.Predictor, cfg Config) *Server {
	if cfg.ThresholdDays <= 0 {
		cfg.ThresholdDays = defaultThresholdDays
	}

	s := &Server{
		backend:  backend,
		importer: importer.New(backend, predictor),
		mux:      http.NewServeMux(),
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.health)

	api := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, s.requireToken(h))
	}

	api("POST /api/imports/upload", s.upload)
	api("GET /api/imports/batches", s.listBatches)
	api("GET /api/imports/batches/{batchID}", s.getBatch)
	api("DELETE /api/imports/batches/{batchID}", s.deleteBatch)
	api("GET /api/imports/batches/{batchID}/transactions", s.batchTransactions)
	api("PUT /api/imports/batches/{batchID}/transactions/{transactionID}", s.reviewTransaction)
	api("POST /api/imports/batches/{batchID}/transactions/{transactionID}", s.reviewTransaction)
	api("DELETE /api/imports/batches/{batchID}/transactions/{transactionID}", s.deleteTransaction)
	api("GET /api/imports/duplicates", s.findDuplicates)
	api("POST /api/imports/merge-duplicates", s.mergeDuplicates)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
// A non-nil tlsConfig switches the listener to HTTPS.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Import service listening", "addr", addr, "tls", tlsConfig != nil)
		if tlsConfig != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("Shutting down import service")
		return srv.Shutdown(shutdownCtx)
	}
}

// Retrain refreshes the category predictor from reviewed transactions.
func (s *Server) Retrain(ctx context.Context) error {
	return s.importer.Retrain(ctx)
}
