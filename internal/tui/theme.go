package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the styles used by the duplicate review screen.
type Theme struct {
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Normal        lipgloss.Style
	Selected      lipgloss.Style
	Keep          lipgloss.Style
	Debit         lipgloss.Style
	Credit        lipgloss.Style
	Muted         lipgloss.Style
	RoundedBox    lipgloss.Style
	StatusInfo    lipgloss.Style
	StatusError   lipgloss.Style
	StatusSuccess lipgloss.Style
}

type palette struct {
	text, accent, keep, debit, credit, info, muted lipgloss.TerminalColor
}

var defaultPalette = palette{
	text:   lipgloss.AdaptiveColor{Light: "#1f2937", Dark: "#f5f5f5"},
	accent: lipgloss.Color("#0f766e"),
	keep:   lipgloss.Color("#d97706"),
	debit:  lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"},
	credit: lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#4ade80"},
	info:   lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#60a5fa"},
	muted:  lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"},
}

func newTheme(p palette) Theme {
	fg := func(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

	return Theme{
		Title:         fg(p.text).Bold(true),
		Subtitle:      fg(p.muted).MarginBottom(1),
		Normal:        fg(p.text),
		Selected:      lipgloss.NewStyle().Background(p.accent).Foreground(lipgloss.Color("#ffffff")).Bold(true),
		Keep:          fg(p.keep).Bold(true),
		Debit:         fg(p.debit),
		Credit:        fg(p.credit),
		Muted:         fg(p.muted),
		RoundedBox:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.accent).Padding(0, 2),
		StatusInfo:    fg(p.info).Bold(true),
		StatusError:   fg(p.debit).Bold(true),
		StatusSuccess: fg(p.credit).Bold(true),
	}
}

// DefaultTheme adapts its colors to light and dark terminals.
var DefaultTheme = newTheme(defaultPalette)
