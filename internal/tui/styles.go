package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("211")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	streakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	favoriteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	readerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86")).
				MarginBottom(1)

	readerBodyStyle = lipgloss.NewStyle().
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	prefsLabelStyle = lipgloss.NewStyle().
			Width(18).
			Foreground(lipgloss.Color("250"))

	prefsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))
)
