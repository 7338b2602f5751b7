package main

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-reconcile/internal/certs"
	"github.com/Veraticus/spice-reconcile/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	var hosts []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local database as an import service",
		Long: `Expose the local database over HTTP so other reconcile clients can use it
with --remote. Requests under /api must carry the configured bearer token
when server.token is set.`,
		Example: `  # Serve on the default address
  reconcile serve

  # Require a token
  RECONCILE_SERVER_TOKEN=s3cret reconcile serve --addr 127.0.0.1:5000

  # Serve over HTTPS with a self-signed certificate; clients set remote.ca_file
  reconcile serve --tls --host ledger.lan`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if settings.Remote.Enabled() {
				return fmt.Errorf("serve uses the local database; unset remote.url")
			}

			store, err := openStore(ctx, settings)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close database", "error", err)
				}
			}()

			srv := server.New(store, nil, server.Config{
				Token:         settings.ServerToken,
				ThresholdDays: settings.Duplicates.ThresholdDays,
			})
			if err := srv.Retrain(ctx); err != nil {
				slog.Warn("Failed to train category predictor", "error", err)
			}
			if settings.ServerToken == "" {
				slog.Warn("No server.token configured; the API accepts unauthenticated requests")
			}

			var tlsConfig *tls.Config
			if settings.ServerTLS {
				manager := certs.NewFileManager(settings.ServerCertDir, hosts...)
				cert, err := manager.GetOrCreateCertificate()
				if err != nil {
					return fmt.Errorf("failed to prepare TLS certificate: %w", err)
				}
				tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
				slog.Info("Serving with TLS",
					"cert", manager.CertFile(),
					"sha256", certs.Fingerprint(cert))
			}

			return srv.ListenAndServe(ctx, settings.ServerAddr, tlsConfig)
		},
	}

	cmd.Flags().String("addr", ":5000", "address to listen on")
	cmd.Flags().String("token", "", "bearer token required on API requests")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	cmd.Flags().Bool("tls", false, "serve HTTPS with a self-signed certificate")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "extra host names or IPs the certificate should cover")
	_ = viper.BindPFlag("server.token", cmd.Flags().Lookup("token"))
	_ = viper.BindPFlag("server.tls", cmd.Flags().Lookup("tls"))

	return cmd
}
