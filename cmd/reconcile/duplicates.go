package main

import (
	"fmt"

	"github.com/Veraticus/spice-reconcile/internal/cli"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/reconcile"
	"github.com/Veraticus/spice-reconcile/internal/tui"
	"github.com/spf13/cobra"
)

func duplicatesCmd() *cobra.Command {
	var (
		threshold   int
		mergeGroup  int
		keep        string
		keepPos     int
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find and merge duplicate transactions",
		Long: `List pending transactions that look like the same charge imported more
than once: equal amounts within a few days of each other. A group is
merged by keeping one transaction and removing the rest.`,
		Example: `  # List duplicate groups within 3 days
  reconcile duplicates

  # Widen the window to a week
  reconcile duplicates --threshold 7

  # Merge group 2, keeping its first transaction
  reconcile duplicates --merge 2 --keep-pos 1

  # Merge group 2, keeping the transaction with id 1841
  reconcile duplicates --merge 2 --keep 1841

  # Review duplicates interactively
  reconcile duplicates --tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if mergeGroup > 0 && keep == "" && keepPos == 0 {
				return fmt.Errorf("--merge needs --keep or --keep-pos")
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			money, err := newMoney(settings)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = settings.Duplicates.ThresholdDays
			}

			b, err := openBackend(ctx, settings)
			if err != nil {
				return err
			}
			defer closeBackend(b)

			rec := newReconciler(b, settings)
			if interactive {
				if err := b.autoCheckpoint(ctx, "duplicate-review"); err != nil {
					return err
				}
				return tui.Run(ctx, rec, money, threshold)
			}

			if err := rec.LoadDuplicates(ctx, threshold); err != nil {
				return fmt.Errorf("failed to find duplicates: %w", err)
			}

			if mergeGroup > 0 {
				if err := b.autoCheckpoint(ctx, "merge"); err != nil {
					return err
				}
				plan, err := mergeOne(cmd, rec, mergeGroup-1, keep, keepPos)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Kept %s and removed %d duplicate(s)", plan.KeepID, len(plan.RemoveIDs))))
				fmt.Fprintln(out)
			}

			return cli.RenderGroups(out, rec.Groups(), rec.Selection(), money)
		},
	}

	cmd.Flags().IntVarP(&threshold, "threshold", "t", 3, "maximum days between duplicate transactions")
	cmd.Flags().IntVar(&mergeGroup, "merge", 0, "merge the group with this number")
	cmd.Flags().StringVar(&keep, "keep", "", "id of the transaction to keep")
	cmd.Flags().IntVar(&keepPos, "keep-pos", 0, "number within the group of the transaction to keep")
	cmd.MarkFlagsMutuallyExclusive("keep", "keep-pos")
	cmd.Flags().BoolVar(&interactive, "tui", false, "review duplicates interactively")
	return cmd
}

// mergeOne selects the keep transaction of a group and applies the merge.
func mergeOne(cmd *cobra.Command, rec *reconcile.Reconciler, groupIndex int, keepID string, keepPos int) (model.MergePlan, error) {
	groups := rec.Groups()
	if groupIndex >= len(groups) {
		return model.MergePlan{}, fmt.Errorf("there are only %d duplicate groups", len(groups))
	}

	keepID, err := resolveKeep(groups[groupIndex], keepID, keepPos)
	if err != nil {
		return model.MergePlan{}, err
	}
	if err := rec.SelectKeep(groupIndex, keepID); err != nil {
		return model.MergePlan{}, err
	}
	plan, err := rec.ConfirmMerge(cmd.Context(), groupIndex)
	if err != nil {
		return model.MergePlan{}, fmt.Errorf("failed to merge duplicates: %w", err)
	}
	return plan, nil
}

// resolveKeep turns --keep or --keep-pos into a transaction id. An id is
// never read as a position, so numeric ids cannot pick the wrong row.
func resolveKeep(group model.DuplicateGroup, keepID string, keepPos int) (string, error) {
	if keepPos == 0 {
		return keepID, nil
	}
	if keepPos < 1 || keepPos > len(group.Transactions) {
		return "", fmt.Errorf("--keep-pos must be between 1 and %d", len(group.Transactions))
	}
	return group.Transactions[keepPos-1].ID, nil
}
