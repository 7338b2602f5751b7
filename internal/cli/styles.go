// Package cli provides the line-based review workflow and styled terminal
// output using lipgloss.
package cli

import (
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Palette. Adaptive colors keep text readable on light and dark terminals.
var (
	accent = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FB923C"}
	credit = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#5EEAD4"}
	debit  = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	notice = lipgloss.AdaptiveColor{Light: "#A16207", Dark: "#FACC15"}
	muted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	rule   = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#374151"}
)

// Text styles.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	PromptStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	SuccessStyle = lipgloss.NewStyle().Foreground(credit)
	ErrorStyle   = lipgloss.NewStyle().Foreground(debit)
	WarningStyle = lipgloss.NewStyle().Foreground(notice)
	InfoStyle    = lipgloss.NewStyle().Foreground(muted)
	SubtleStyle  = lipgloss.NewStyle().Foreground(muted).Faint(true)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(rule)

	// BoxStyle frames the transaction under review.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(rule).
			Padding(1, 2)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "!"
	InfoIcon    = "›"
	KeepIcon    = "★"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

func FormatTitle(title string) string {
	return TitleStyle.Render(title)
}

func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " → ")
}

// AmountStyle colors debits red and credits teal.
func AmountStyle(amount decimal.Decimal) lipgloss.Style {
	if amount.IsNegative() {
		return ErrorStyle
	}
	return SuccessStyle
}

// StatusStyle colors review and batch statuses: finished states green,
// rejections red, anything still open yellow.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case string(model.StatusApproved), string(model.BatchCompleted):
		return SuccessStyle
	case string(model.StatusRejected):
		return ErrorStyle
	default:
		return WarningStyle
	}
}

// RenderBox renders content under a title inside a rounded border.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}
