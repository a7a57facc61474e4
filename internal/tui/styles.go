package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	buttonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	bodyStyle   = lipgloss.NewStyle()
	authorStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	formStyle   = lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.RoundedBorder())
	spinStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)
