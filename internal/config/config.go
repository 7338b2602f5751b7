// Package config loads reconcile settings from Viper with environment fallbacks.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/dedup"
	"github.com/Veraticus/spice-reconcile/internal/service"
	"github.com/spf13/viper"
)

// Default paths used when database.path or server.cert_dir are not configured.
const (
	DefaultDatabasePath = "$HOME/.local/share/reconcile/reconcile.db"
	DefaultCertDir      = "$HOME/.local/share/reconcile/certs"
)

// Remote configures the remote import service. An empty URL selects the
// local SQLite store.
type Remote struct {
	URL     string
	Token   string
	CAFile  string
	Retry   service.RetryOptions
	Timeout time.Duration
}

// Enabled reports whether a remote service is configured.
func (r Remote) Enabled() bool {
	return r.URL != ""
}

// Settings is the full reconcile configuration.
type Settings struct {
	Remote         Remote
	DatabasePath   string
	ServerAddr     string
	ServerToken    string
	ServerCertDir  string
	Locale         string
	CurrencySymbol string
	Duplicates     dedup.Options
	AllowReReview  bool
	ServerTLS      bool
	AutoCheckpoint bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("remote.retries", 3)
	v.SetDefault("duplicates.threshold_days", dedup.DefaultThresholdDays)
	v.SetDefault("duplicates.min_similarity", 0.8)
	v.SetDefault("review.allow_rereview", false)
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.tls", false)
	v.SetDefault("checkpoint.auto", true)
	v.SetDefault("server.cert_dir", DefaultCertDir)
	v.SetDefault("format.locale", "pt-BR")
	v.SetDefault("format.currency_symbol", "R$")
}

// Load reads Settings from v. It follows this precedence:
// 1. Viper configuration (config file or RECONCILE_ env vars)
// 2. Direct environment variables (IMPORT_SERVICE_URL, IMPORT_SERVICE_TOKEN)
// 3. Defaults registered by SetDefaults
func Load(v *viper.Viper) (Settings, error) {
	settings := Settings{
		DatabasePath:   ExpandPath(v.GetString("database.path")),
		ServerAddr:     v.GetString("server.addr"),
		ServerToken:    v.GetString("server.token"),
		ServerTLS:      v.GetBool("server.tls"),
		AutoCheckpoint: v.GetBool("checkpoint.auto"),
		ServerCertDir:  ExpandPath(v.GetString("server.cert_dir")),
		Locale:         v.GetString("format.locale"),
		CurrencySymbol: v.GetString("format.currency_symbol"),
		AllowReReview:  v.GetBool("review.allow_rereview"),
		Duplicates: dedup.Options{
			ThresholdDays: v.GetInt("duplicates.threshold_days"),
			MinSimilarity: v.GetFloat64("duplicates.min_similarity"),
		},
		Remote: Remote{
			URL:     strings.TrimSpace(v.GetString("remote.url")),
			Token:   v.GetString("remote.token"),
			CAFile:  ExpandPath(v.GetString("remote.ca_file")),
			Timeout: v.GetDuration("remote.timeout"),
			Retry:   retryOptions(v.GetInt("remote.retries")),
		},
	}

	if settings.Remote.URL == "" {
		settings.Remote.URL = strings.TrimSpace(os.Getenv("IMPORT_SERVICE_URL"))
	}
	if settings.Remote.Token == "" {
		settings.Remote.Token = os.Getenv("IMPORT_SERVICE_TOKEN")
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Validate checks settings that would otherwise fail later and less clearly.
func (s Settings) Validate() error {
	if !s.Remote.Enabled() && s.DatabasePath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if err := s.Duplicates.Validate(); err != nil {
		return err
	}
	if s.Remote.Timeout < 0 {
		return fmt.Errorf("%w: remote.timeout must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

func retryOptions(attempts int) service.RetryOptions {
	if attempts < 1 {
		attempts = 1
	}
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~" || strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
