package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-reconcile/internal/cli"
	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "review BATCH_ID",
		Short: "Review the pending transactions of a batch",
		Long: `Walk through each pending transaction of an import batch and approve,
reject, recategorize, or delete it. Reviews are saved as you go, so an
interrupted session can be resumed with the same command.`,
		Example: `  # Review everything pending in a batch
  reconcile review 3f2a9c

  # Only transactions whose description mentions uber
  reconcile review 3f2a9c --search uber`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID := args[0]
			out := cmd.OutOrStdout()

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			money, err := newMoney(settings)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer closeBackend(b)

			handler := cli.NewInterruptHandler(out)
			ctx := handler.HandleInterrupts(cmd.Context(), "reconcile review "+batchID)

			reviewer := cli.NewReviewer(newReconciler(b, settings), money, cmd.InOrStdin(), out)
			if _, err := reviewer.Review(ctx, batchID, search); err != nil {
				if handler.WasInterrupted() && errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("review failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only review transactions whose description contains this text")
	return cmd
}
