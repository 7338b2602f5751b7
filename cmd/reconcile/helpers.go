package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Veraticus/spice-reconcile/internal/certs"
	"github.com/Veraticus/spice-reconcile/internal/cli"
	"github.com/Veraticus/spice-reconcile/internal/config"
	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/importapi"
	"github.com/Veraticus/spice-reconcile/internal/importer"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/reconcile"
	"github.com/Veraticus/spice-reconcile/internal/service"
	"github.com/Veraticus/spice-reconcile/internal/storage"
	"github.com/spf13/viper"
)

// importSummary is what the user is told about one imported file.
type importSummary struct {
	Batch             model.Batch
	DuplicatesSkipped []string
	Pending           int
}

// backend is the local store or the remote import service, plus statement
// import, which the two implement differently.
type backend struct {
	service.Backend
	importFile  func(ctx context.Context, filename string, r io.Reader) (importSummary, error)
	close       func() error
	checkpoints *storage.CheckpointManager
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// autoCheckpoint saves the local database before a destructive change. It
// does nothing against a remote service or when checkpoint.auto is off.
func (b *backend) autoCheckpoint(ctx context.Context, operation string) error {
	if b.checkpoints == nil {
		return nil
	}
	info, err := b.checkpoints.AutoCheckpoint(ctx, operation)
	if err != nil {
		return err
	}
	slog.Info("Saved checkpoint", "id", info.ID)
	return nil
}

func loadSettings() (config.Settings, error) {
	return config.Load(viper.GetViper())
}

// openBackend connects to the remote service when one is configured and to
// the local database otherwise.
func openBackend(ctx context.Context, settings config.Settings) (*backend, error) {
	if settings.Remote.Enabled() {
		return openRemote(settings)
	}
	return openLocal(ctx, settings)
}

func openRemote(settings config.Settings) (*backend, error) {
	var session *importapi.Session
	if settings.Remote.Token != "" {
		session = importapi.NewSession(settings.Remote.Token, func() {
			slog.Warn("Import service rejected the token; set remote.token or IMPORT_SERVICE_TOKEN")
		})
	}

	transport, err := remoteTransport(settings.Remote.CAFile)
	if err != nil {
		return nil, err
	}

	client, err := importapi.NewClient(importapi.Config{
		Transport: transport,
		BaseURL:   settings.Remote.URL,
		Retry:     settings.Remote.Retry,
		Timeout:   settings.Remote.Timeout,
	}, session)
	if err != nil {
		return nil, err
	}

	slog.Debug("Using remote import service", "url", settings.Remote.URL)
	return &backend{
		Backend: client,
		importFile: func(ctx context.Context, filename string, r io.Reader) (importSummary, error) {
			res, err := client.UploadOFX(ctx, filepath.Base(filename), r)
			if err != nil {
				return importSummary{}, err
			}
			return importSummary{Batch: res.Batch, Pending: len(res.Pending), DuplicatesSkipped: res.DuplicatesSkipped}, nil
		},
	}, nil
}

// remoteTransport trusts caFile in addition to the system roots, for servers
// running `reconcile serve --tls` with their self-signed certificate.
func remoteTransport(caFile string) (http.RoundTripper, error) {
	if caFile == "" {
		return nil, nil
	}
	pool, err := certs.LoadPool(caFile)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return transport, nil
}

// openStore opens and migrates the SQLite database.
func openStore(ctx context.Context, settings config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.DatabasePath, storage.Options{
		MinSimilarity: settings.Duplicates.MinSimilarity,
		AllowReReview: settings.AllowReReview,
	})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Using local database", "path", settings.DatabasePath)
	return store, nil
}

func openLocal(ctx context.Context, settings config.Settings) (*backend, error) {
	store, err := openStore(ctx, settings)
	if err != nil {
		return nil, err
	}

	var checkpoints *storage.CheckpointManager
	if settings.AutoCheckpoint {
		checkpoints, err = storage.NewCheckpointManager(store)
		if err != nil {
			slog.Warn("Automatic checkpoints disabled", "error", err)
		}
	}

	imp := importer.New(store, nil)
	return &backend{
		Backend: store,
		importFile: func(ctx context.Context, filename string, r io.Reader) (importSummary, error) {
			res, err := imp.Import(ctx, filename, r)
			if err != nil {
				return importSummary{}, err
			}
			return importSummary{Batch: res.Batch, Pending: len(res.Pending), DuplicatesSkipped: res.DuplicatesSkipped}, nil
		},
		close:       store.Close,
		checkpoints: checkpoints,
	}, nil
}

func newReconciler(b *backend, settings config.Settings) *reconcile.Reconciler {
	return reconcile.New(b, reconcile.Config{
		ThresholdDays: settings.Duplicates.ThresholdDays,
		AllowReReview: settings.AllowReReview,
	})
}

func newMoney(settings config.Settings) (*format.Money, error) {
	return format.NewMoney(settings.Locale, settings.CurrencySymbol)
}

// expandFiles expands glob patterns into statement files.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				matches = []string{pattern}
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		}
		for _, m := range matches {
			if importer.Supported(m) {
				files = append(files, m)
			} else {
				slog.Warn("Skipping file that is not OFX/QFX", "file", m)
			}
		}
	}
	return files, nil
}

func printError(w io.Writer, err error) {
	if _, werr := fmt.Fprintln(w, cli.FormatError(err.Error())); werr != nil {
		slog.Warn("Failed to write output", "error", werr)
	}
}
