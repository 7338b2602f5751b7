package tui

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/reconcile"
	"github.com/Veraticus/spice-reconcile/internal/storage"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

// newDuplicateStore imports the same card charge in two batches.
func newDuplicateStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath, storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	amount := decimal.RequireFromString("-89.90")
	_, err = store.SaveBatch(ctx, model.Batch{Filename: "maio.ofx"}, []model.Transaction{
		{FITID: "a1", Date: day0, Description: "SUPERMERCADO DIA", Amount: amount},
		{FITID: "a2", Date: day0, Description: "PADARIA", Amount: decimal.RequireFromString("-12.00")},
	})
	require.NoError(t, err)
	_, err = store.SaveBatch(ctx, model.Batch{Filename: "maio-cartao.ofx"}, []model.Transaction{
		{FITID: "b1", Date: day0.AddDate(0, 0, 1), Description: "SUPERMERCADO DIA", Amount: amount},
	})
	require.NoError(t, err)
	return store
}

func newTestModel(t *testing.T, store *storage.SQLiteStorage) Model {
	t.Helper()
	money, err := format.NewMoney("pt-BR", "R$")
	require.NoError(t, err)

	rec := reconcile.New(store, reconcile.Config{ThresholdDays: 3})
	m := NewModel(context.Background(), rec, money, 3)
	return load(t, m, m.Init())
}

// load runs a command synchronously and feeds its message back.
func load(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	updated, next := m.Update(cmd())
	assert.Nil(t, next)
	return updated.(Model)
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch keys {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)}
	}
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestModel_LoadsGroups(t *testing.T) {
	m := newTestModel(t, newDuplicateStore(t))

	assert.Equal(t, StateBrowsing, m.state)
	require.Len(t, m.groups, 1)
	assert.Len(t, m.groups[0].Transactions, 2)
	assert.NoError(t, m.lastError)

	view := m.View()
	assert.Contains(t, view, "Duplicate Review")
	assert.Contains(t, view, "Group 1/1")
	assert.Contains(t, view, "SUPERMERCADO DIA")
	assert.NotContains(t, view, keepIcon)
}

func TestModel_SelectAndMerge(t *testing.T) {
	store := newDuplicateStore(t)
	m := newTestModel(t, store)
	keep := m.groups[0].Transactions[1]

	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.cursor)

	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, keep.ID, m.selection[0])
	assert.Contains(t, m.View(), keepIcon)

	m, _ = press(t, m, "m")
	require.Equal(t, StateConfirmMerge, m.state)
	assert.Equal(t, keep.ID, m.plan.KeepID)
	assert.Len(t, m.plan.RemoveIDs, 1)
	assert.Contains(t, m.View(), "remove 1 transaction(s)")

	m, cmd = press(t, m, "y")
	assert.Equal(t, StateBusy, m.state)
	m = load(t, m, cmd)

	assert.Equal(t, StateBrowsing, m.state)
	assert.NoError(t, m.lastError)
	assert.Empty(t, m.groups)
	assert.Contains(t, m.status, "removed 1")
	assert.Contains(t, m.View(), "No duplicates found.")

	groups, err := store.FindDuplicates(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestModel_MergeCancelled(t *testing.T) {
	m := newTestModel(t, newDuplicateStore(t))

	m, _ = press(t, m, "enter")
	m, _ = press(t, m, "m")
	require.Equal(t, StateConfirmMerge, m.state)

	m, cmd := press(t, m, "n")
	assert.Nil(t, cmd)
	assert.Equal(t, StateBrowsing, m.state)
	assert.Equal(t, "Merge cancelled", m.status)
	assert.Len(t, m.groups, 1)
}

func TestModel_MergeWithoutKeep(t *testing.T) {
	m := newTestModel(t, newDuplicateStore(t))

	m, cmd := press(t, m, "m")
	assert.Nil(t, cmd)
	assert.Equal(t, StateBrowsing, m.state)
	assert.ErrorIs(t, m.lastError, common.ErrNoKeepSelected)
	assert.Contains(t, m.View(), common.ErrNoKeepSelected.Error())
}

func TestModel_DeleteMember(t *testing.T) {
	store := newDuplicateStore(t)
	m := newTestModel(t, store)

	m, _ = press(t, m, "j")
	target := m.groups[0].Transactions[1]

	m, cmd := press(t, m, "d")
	require.NotNil(t, cmd)
	m = load(t, m, cmd)

	assert.NoError(t, m.lastError)
	assert.Empty(t, m.groups)
	assert.Equal(t, 0, m.cursor)

	remaining, err := store.GetBatchTransactions(context.Background(), target.BatchID)
	require.NoError(t, err)
	assert.NotContains(t, model.IDs(remaining), target.ID)
}

func TestModel_ThresholdKeys(t *testing.T) {
	m := newTestModel(t, newDuplicateStore(t))

	m, cmd := press(t, m, "-")
	assert.Equal(t, StateLoading, m.state)
	assert.Equal(t, 2, m.threshold)
	m = load(t, m, cmd)
	assert.Equal(t, 2, m.threshold)
	assert.Len(t, m.groups, 1)

	m.threshold = 1
	m, cmd = press(t, m, "-")
	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.threshold)

	m, cmd = press(t, m, "+")
	m = load(t, m, cmd)
	assert.Equal(t, 2, m.threshold)
}

func TestModel_StaleLoadIgnored(t *testing.T) {
	m := newTestModel(t, newDuplicateStore(t))

	m, _ = press(t, m, "r")
	require.Equal(t, StateLoading, m.state)

	updated, cmd := m.Update(groupsLoadedMsg{threshold: 3, err: common.ErrStaleResponse})
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, StateLoading, m.state)
	assert.NoError(t, m.lastError)
}

func TestModel_Navigation(t *testing.T) {
	m := newTestModel(t, newDuplicateStore(t))

	m, _ = press(t, m, "k")
	assert.Equal(t, 0, m.cursor)
	m, _ = press(t, m, "j")
	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.cursor)

	// single group
	m, _ = press(t, m, "l")
	assert.Equal(t, 0, m.group)
	assert.Equal(t, 1, m.cursor)

	m, _ = press(t, m, "?")
	assert.True(t, m.help.ShowAll)
}

func TestModel_Quit(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"q", "q"},
		{"ctrl+c", "ctrl+c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, newDuplicateStore(t))
			m, cmd := press(t, m, tt.key)
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			assert.True(t, m.quitting)
			assert.Empty(t, m.View())
		})
	}
}

func TestModel_EscCancelsBeforeQuitting(t *testing.T) {
	m := newTestModel(t, newDuplicateStore(t))
	m, _ = press(t, m, "enter")
	m, _ = press(t, m, "m")

	m, cmd := press(t, m, "esc")
	assert.Nil(t, cmd)
	assert.False(t, m.quitting)
	assert.Equal(t, StateBrowsing, m.state)
}
