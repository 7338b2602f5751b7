package tui

import "github.com/Veraticus/spice-reconcile/internal/model"

// Data loading messages.
type groupsLoadedMsg struct {
	err       error
	threshold int
}

// Async operation messages.
type mergeDoneMsg struct {
	err  error
	plan model.MergePlan
}

type deleteDoneMsg struct {
	err           error
	transactionID string
}
