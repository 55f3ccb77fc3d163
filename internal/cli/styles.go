package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"ollama-dash/internal/format"
)

var (
	accent = lipgloss.Color("#1E88E5")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F44336"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF9800"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}

// countdownStyle colours a keep-alive countdown by its format class.
func countdownStyle(class string) lipgloss.Style {
	switch class {
	case format.ClassOK:
		return successStyle
	case format.ClassWarn:
		return warnStyle
	case format.ClassUrgent:
		return errorStyle
	default:
		return mutedStyle
	}
}
