package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-reconcile/internal/cli"
	"github.com/Veraticus/spice-reconcile/internal/storage"
	"github.com/spf13/cobra"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save and restore copies of the local database",
		Long: `Checkpoints are copies of the local database kept next to it. One is taken
automatically before merges and batch deletes unless checkpoint.auto is off.`,
		Example: `  # Save the database before a cleanup session
  reconcile checkpoint create before-march --description "before march cleanup"

  # Go back to it
  reconcile checkpoint restore before-march --force`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())
	return cmd
}

// withCheckpoints opens the local database and runs fn with its checkpoint
// manager.
func withCheckpoints(cmd *cobra.Command, fn func(*storage.CheckpointManager) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if settings.Remote.Enabled() {
		return fmt.Errorf("checkpoints apply to the local database; unset remote.url")
	}

	store, err := openStore(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}()

	cm, err := storage.NewCheckpointManager(store)
	if err != nil {
		return err
	}
	return fn(cm)
}

func createCheckpointCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create [TAG]",
		Short: "Save a checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := ""
			if len(args) == 1 {
				tag = args[0]
			}
			return withCheckpoints(cmd, func(cm *storage.CheckpointManager) error {
				info, err := cm.Create(cmd.Context(), tag, description)
				if err != nil {
					return fmt.Errorf("failed to create checkpoint: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved checkpoint %s (%d transactions)", info.ID, info.Transactions)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "note stored with the checkpoint")
	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List checkpoints, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd, func(cm *storage.CheckpointManager) error {
				checkpoints, err := cm.List(cmd.Context())
				if err != nil {
					return err
				}
				return cli.RenderCheckpoints(cmd.OutOrStdout(), checkpoints)
			})
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore ID",
		Short: "Replace the database with a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("restoring discards every change made since the checkpoint; rerun with --force to confirm")
			}
			return withCheckpoints(cmd, func(cm *storage.CheckpointManager) error {
				if err := cm.Restore(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to restore checkpoint: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Restored checkpoint "+args[0]))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm the restore")
	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCheckpoints(cmd, func(cm *storage.CheckpointManager) error {
				if err := cm.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted checkpoint "+args[0]))
				return nil
			})
		},
	}
}
