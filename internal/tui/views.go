package tui

import (
	"fmt"
	"strings"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/charmbracelet/lipgloss"
)

const keepIcon = "★"

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{m.renderHeader()}

	switch {
	case m.state == StateLoading && m.groups == nil:
		sections = append(sections, m.theme.Muted.Render("Loading duplicate groups..."))
	case len(m.groups) == 0:
		sections = append(sections, m.theme.StatusSuccess.Render("No duplicates found."))
	default:
		sections = append(sections, m.renderGroup())
	}

	if m.state == StateConfirmMerge {
		sections = append(sections, m.renderConfirm())
	}
	if line := m.renderStatus(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, m.help.View(m.keymap))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("Duplicate Review")
	subtitle := m.theme.Subtitle.Render(fmt.Sprintf("Threshold: %d days · %d groups", m.threshold, len(m.groups)))
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle)
}

func (m Model) renderGroup() string {
	g, ok := m.currentGroup()
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Group %d/%d · %s · %s\n\n",
		m.group+1, len(m.groups), m.renderAmount(g.Amount.IsNegative(), m.money.Format(g.Amount)), g.Description)

	keepID := m.selection[m.group]
	for i, t := range g.Transactions {
		marker := "  "
		if t.ID == keepID {
			marker = m.theme.Keep.Render(keepIcon) + " "
		}

		row := fmt.Sprintf("%s  %-30s  %s", format.Date(t.Date), truncate(t.Description, 30), m.theme.Muted.Render("batch "+t.BatchID))
		if i == m.cursor {
			row = m.theme.Selected.Render(row)
		} else {
			row = m.theme.Normal.Render(row)
		}
		b.WriteString(marker + row + "\n")
	}
	return b.String()
}

func (m Model) renderConfirm() string {
	g, _ := m.currentGroup()
	keep := m.plan.KeepID
	for _, t := range g.Transactions {
		if t.ID == m.plan.KeepID {
			keep = fmt.Sprintf("%s (%s)", t.Description, format.Date(t.Date))
			break
		}
	}

	body := fmt.Sprintf("Keep %s and remove %d transaction(s)?\n\n[y] confirm   [n] cancel", keep, len(m.plan.RemoveIDs))
	return m.theme.RoundedBox.Render(body)
}

func (m Model) renderStatus() string {
	if m.lastError != nil {
		return m.theme.StatusError.Render("✗ " + common.RemoteMessage(m.lastError))
	}
	if m.status != "" {
		return m.theme.StatusInfo.Render(m.status)
	}
	return ""
}

func (m Model) renderAmount(negative bool, s string) string {
	if negative {
		return m.theme.Debit.Render(s)
	}
	return m.theme.Credit.Render(s)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
