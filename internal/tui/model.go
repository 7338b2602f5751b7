// Package tui provides the interactive duplicate review screen.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/reconcile"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// State represents the current state of the TUI.
type State int

const (
	StateLoading State = iota
	StateBrowsing
	StateConfirmMerge
	StateBusy
)

// Model holds the duplicate review state. Groups and the keep selection are
// copies taken from the Reconciler after each load.
type Model struct {
	ctx       context.Context
	lastError error
	rec       *reconcile.Reconciler
	money     *format.Money
	selection map[int]string
	help      help.Model
	status    string
	plan      model.MergePlan
	groups    []model.DuplicateGroup
	keymap    KeyMap
	theme     Theme
	width     int
	height    int
	group     int
	cursor    int
	threshold int
	state     State
	quitting  bool
}

// NewModel creates a model that loads duplicate groups for threshold days on Init.
func NewModel(ctx context.Context, rec *reconcile.Reconciler, money *format.Money, threshold int) Model {
	if threshold <= 0 {
		threshold = rec.Threshold()
	}
	return Model{
		ctx:       ctx,
		rec:       rec,
		money:     money,
		selection: make(map[int]string),
		help:      help.New(),
		keymap:    DefaultKeyMap(),
		theme:     DefaultTheme,
		threshold: threshold,
		state:     StateLoading,
		width:     80,
		height:    24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.loadGroups(m.threshold)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case groupsLoadedMsg:
		if errors.Is(msg.err, common.ErrStaleResponse) {
			// A newer load is in flight.
			return m, nil
		}
		m.state = StateBrowsing
		if msg.err != nil {
			m.lastError = msg.err
			return m, nil
		}
		m.lastError = nil
		m.threshold = msg.threshold
		m.sync()

	case mergeDoneMsg:
		m.state = StateBrowsing
		m.sync()
		if msg.err != nil {
			m.lastError = msg.err
			return m, nil
		}
		m.lastError = nil
		m.status = fmt.Sprintf("Merged: kept %s, removed %d", msg.plan.KeepID, len(msg.plan.RemoveIDs))

	case deleteDoneMsg:
		m.state = StateBrowsing
		m.sync()
		if msg.err != nil {
			m.lastError = msg.err
			return m, nil
		}
		m.lastError = nil
		m.status = "Deleted " + msg.transactionID
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.ForceQuit) {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.state {
	case StateConfirmMerge:
		switch {
		case key.Matches(msg, m.keymap.Confirm):
			m.state = StateBusy
			m.status = "Merging..."
			return m, m.confirmMerge(m.group)
		case key.Matches(msg, m.keymap.Cancel):
			m.state = StateBrowsing
			m.status = "Merge cancelled"
		}
		return m, nil

	case StateLoading, StateBusy:
		if key.Matches(msg, m.keymap.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case StateBrowsing:
	}

	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keymap.Down):
		if g, ok := m.currentGroup(); ok && m.cursor < len(g.Transactions)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keymap.PrevGroup):
		if m.group > 0 {
			m.group--
			m.cursor = 0
		}

	case key.Matches(msg, m.keymap.NextGroup):
		if m.group < len(m.groups)-1 {
			m.group++
			m.cursor = 0
		}

	case key.Matches(msg, m.keymap.Keep):
		txn, ok := m.currentTransaction()
		if !ok {
			break
		}
		if err := m.rec.SelectKeep(m.group, txn.ID); err != nil {
			m.lastError = err
			break
		}
		m.lastError = nil
		m.selection = m.rec.Selection()
		m.status = "Keeping " + txn.Description

	case key.Matches(msg, m.keymap.Merge):
		plan, err := m.rec.PlanMerge(m.group)
		if err != nil {
			m.lastError = err
			break
		}
		m.lastError = nil
		m.plan = plan
		m.state = StateConfirmMerge

	case key.Matches(msg, m.keymap.Delete):
		txn, ok := m.currentTransaction()
		if !ok {
			break
		}
		m.state = StateBusy
		m.status = "Deleting..."
		return m, m.deleteTransaction(txn.ID)

	case key.Matches(msg, m.keymap.Wider):
		return m.reload(m.threshold + 1)

	case key.Matches(msg, m.keymap.Narrower):
		if m.threshold > 1 {
			return m.reload(m.threshold - 1)
		}

	case key.Matches(msg, m.keymap.Refresh):
		return m.reload(m.threshold)
	}

	return m, nil
}

func (m Model) reload(threshold int) (tea.Model, tea.Cmd) {
	m.state = StateLoading
	m.threshold = threshold
	m.status = ""
	return m, m.loadGroups(threshold)
}

// sync copies groups and selection from the Reconciler and clamps the cursor.
func (m *Model) sync() {
	m.groups = m.rec.Groups()
	m.selection = m.rec.Selection()

	if m.group >= len(m.groups) {
		m.group = max(len(m.groups)-1, 0)
		m.cursor = 0
	}
	if g, ok := m.currentGroup(); ok && m.cursor >= len(g.Transactions) {
		m.cursor = max(len(g.Transactions)-1, 0)
	}
}

func (m Model) currentGroup() (model.DuplicateGroup, bool) {
	if m.group < 0 || m.group >= len(m.groups) {
		return model.DuplicateGroup{}, false
	}
	return m.groups[m.group], true
}

func (m Model) currentTransaction() (model.Transaction, bool) {
	g, ok := m.currentGroup()
	if !ok || m.cursor < 0 || m.cursor >= len(g.Transactions) {
		return model.Transaction{}, false
	}
	return g.Transactions[m.cursor], true
}
