package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-reconcile/internal/cli"
	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/review"
	"github.com/spf13/cobra"
)

func batchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Manage import batches",
		Long:  `List, inspect, and delete import batches.`,
		Example: `  # List all batches
  reconcile batches list

  # Show a batch with its transactions
  reconcile batches show 3f2a9c

  # Delete a batch and everything imported with it
  reconcile batches delete 3f2a9c`,
	}

	cmd.AddCommand(listBatchesCmd())
	cmd.AddCommand(showBatchCmd())
	cmd.AddCommand(deleteBatchCmd())

	return cmd
}

func listBatchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List import batches",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openFromConfig(cmd)
			if err != nil {
				return err
			}
			defer closeBackend(b)

			batches, err := b.ListBatches(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list batches: %w", err)
			}
			return cli.RenderBatches(cmd.OutOrStdout(), batches)
		},
	}
}

func showBatchCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "show BATCH_ID",
		Short: "Show a batch and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			money, err := newMoney(settings)
			if err != nil {
				return err
			}
			b, err := openBackend(ctx, settings)
			if err != nil {
				return err
			}
			defer closeBackend(b)

			batch, err := b.GetBatch(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get batch: %w", err)
			}
			txns, err := b.GetBatchTransactions(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get transactions: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s · %s", batch.Filename, batch.ID)))
			if batch.InstitutionName != "" {
				fmt.Fprintf(out, "Institution: %s  Account: %s\n", batch.InstitutionName, batch.AccountID)
			}
			if err := cli.RenderStats(out, review.Summarize(txns)); err != nil {
				return err
			}
			fmt.Fprintln(out)

			if status != "" {
				want := model.ParseReviewStatus(status)
				if !want.Valid() {
					return fmt.Errorf("%w: %q", common.ErrInvalidStatus, status)
				}
				txns = review.Filter(txns, want, "")
			}
			return cli.RenderTransactions(out, txns, money)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show transactions with this status (pending, approved, rejected)")
	return cmd
}

func deleteBatchCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete BATCH_ID",
		Short: "Delete a batch and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("deleting a batch removes all of its transactions; rerun with --force to confirm")
			}

			b, err := openFromConfig(cmd)
			if err != nil {
				return err
			}
			defer closeBackend(b)

			if err := b.autoCheckpoint(cmd.Context(), "batch-delete"); err != nil {
				return err
			}
			if err := b.DeleteBatch(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted batch "+args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm deletion")
	return cmd
}

func openFromConfig(cmd *cobra.Command) (*backend, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return openBackend(cmd.Context(), settings)
}

func closeBackend(b *backend) {
	if err := b.Close(); err != nil {
		slog.Warn("Failed to close backend", "error", err)
	}
}
