package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/reconcile"
	tea "github.com/charmbracelet/bubbletea"
)

// resetSequence leaves the alternate screen, shows the cursor and clears
// attributes, for exits where bubbletea could not restore the terminal.
const resetSequence = "\033[?1049l\033[?25h\033[m"

// Run shows the duplicate review screen until the user quits or ctx ends.
func Run(ctx context.Context, rec *reconcile.Reconciler, money *format.Money, threshold int) error {
	if rec == nil {
		return errors.New("reconciler is required")
	}
	defer func() { _, _ = io.WriteString(os.Stdout, resetSequence) }()

	program := tea.NewProgram(
		NewModel(ctx, rec, money, threshold),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := program.Run()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("duplicate review failed: %w", err)
	}
}
