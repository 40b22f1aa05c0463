package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorAccent  = lipgloss.Color("#22D3EE")
	colorOK      = lipgloss.Color("#34D399")
	colorWarn    = lipgloss.Color("#FBBF24")
	colorErr     = lipgloss.Color("#F87171")
	colorMuted   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	stateStyles = map[string]lipgloss.Style{
		"idle":       lipgloss.NewStyle().Foreground(colorMuted),
		"converting": lipgloss.NewStyle().Foreground(colorAccent),
		"ready":      lipgloss.NewStyle().Foreground(colorOK),
		"playing":    lipgloss.NewStyle().Foreground(colorOK).Bold(true),
		"paused":     lipgloss.NewStyle().Foreground(colorWarn),
		"stopped":    lipgloss.NewStyle().Foreground(colorMuted),
		"failed":     lipgloss.NewStyle().Foreground(colorErr).Bold(true),
	}

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorErr)

	logPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

func renderState(state string) string {
	style, ok := stateStyles[state]
	if !ok {
		style = labelStyle
	}
	return style.Render(state)
}
