package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const requestTimeout = 30 * time.Second

// loadGroups fetches duplicate groups for a threshold.
func (m Model) loadGroups(threshold int) tea.Cmd {
	rec, parent := m.rec, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()

		err := rec.LoadDuplicates(ctx, threshold)
		return groupsLoadedMsg{threshold: threshold, err: err}
	}
}

// confirmMerge applies the selected merge for a group.
func (m Model) confirmMerge(groupIndex int) tea.Cmd {
	rec, parent := m.rec, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()

		plan, err := rec.ConfirmMerge(ctx, groupIndex)
		return mergeDoneMsg{plan: plan, err: err}
	}
}

// deleteTransaction removes one transaction and refreshes the groups.
func (m Model) deleteTransaction(transactionID string) tea.Cmd {
	rec, parent := m.rec, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()

		err := rec.DeleteOne(ctx, transactionID)
		return deleteDoneMsg{transactionID: transactionID, err: err}
	}
}
