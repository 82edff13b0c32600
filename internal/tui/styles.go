package tui

import "github.com/charmbracelet/lipgloss"

var (
	selectorHeaderStyle = lipgloss.NewStyle().Faint(true)
	cursorStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	activeStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))

	stageStyles = map[string]lipgloss.Style{
		"activated": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"verified":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"unpacked":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"cached":    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"removed":   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		"resolving":   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"downloading": lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		"skipped": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"warning": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		"error": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// StatusStyle returns the lipgloss style for a status word.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := stageStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
