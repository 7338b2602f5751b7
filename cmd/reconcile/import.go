package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/spice-reconcile/internal/cli"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import OFX or QFX statements exported from your bank. Each file becomes
an import batch whose transactions wait for review. Transactions already
imported from an earlier statement are skipped.

Examples:
  # Import single file
  reconcile import ~/Downloads/extrato_jan_2024.ofx

  # Import all QFX files in a directory
  reconcile import ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	files, err := expandFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no OFX/QFX files found to import")
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Warn("Failed to close backend", "error", err)
		}
	}()

	slog.Info("Importing statements", "file_count", len(files))

	bar := cli.NewProgressBar(out, len(files), "Importing statements...")
	var summaries []importSummary
	var failed int
	for _, path := range files {
		summary, err := importOne(cmd, b, path)
		if err != nil {
			failed++
			slog.Debug("Failed to import file", "file", path, "error", err)
		} else {
			summaries = append(summaries, summary)
		}
		if err := bar.Add(1); err != nil {
			slog.Debug("Failed to update progress bar", "error", err)
		}
	}

	fmt.Fprintln(out, cli.FormatTitle("File import summary"))
	for _, s := range summaries {
		line := fmt.Sprintf("  %s: batch %s, %d pending", s.Batch.Filename, s.Batch.ID, s.Pending)
		if n := len(s.DuplicatesSkipped); n > 0 {
			line += cli.WarningStyle.Render(fmt.Sprintf(", %d already imported", n))
		}
		fmt.Fprintln(out, line)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", failed, len(files))
	}
	if len(summaries) > 0 {
		fmt.Fprintln(out, cli.FormatInfo("Next: reconcile review "+summaries[0].Batch.ID))
	}
	return nil
}

func importOne(cmd *cobra.Command, b *backend, path string) (importSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return importSummary{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	summary, err := b.importFile(cmd.Context(), filepath.Base(path), f)
	if err != nil {
		printError(cmd.ErrOrStderr(), fmt.Errorf("%s: %w", filepath.Base(path), err))
		return importSummary{}, err
	}
	return summary, nil
}
