package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ssdpscan/internal/version"
)

// AppName is shown in the header of every screen
const AppName = "SSDP WATCH"

// Layout constants
const (
	MinTerminalWidth = 72
	MaxContentWidth  = 140
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF5555") // Red
	TextColor      = lipgloss.Color("#FFFFFF") // White
	SubtleColor    = lipgloss.Color("#626262") // Gray
	BorderColor    = lipgloss.Color("#7D56F4") // Purple (same as primary)
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// StatusStyle is for the listening/stopped line
	StatusStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			PaddingLeft(2)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true).
			PaddingLeft(2)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			PaddingLeft(2)
)

// buildHeaderContent returns the app name, version and group line
func buildHeaderContent(group string) string {
	left := lipgloss.NewStyle().
		Foreground(TextColor).
		Bold(true).
		Render(AppName + " " + version.Version)

	right := lipgloss.NewStyle().
		Foreground(SubtleColor).
		Render(group)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// renderContainer wraps a screen with the header, a help footer and an
// outer border sized to the terminal.
func renderContainer(header, content, footer string, width, height int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	if width > MaxContentWidth {
		width = MaxContentWidth
	}

	styledHeader := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(BorderColor).
		Width(width-4).
		Padding(0, 1).
		Render(header)

	styledFooter := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(BorderColor).
		Foreground(SubtleColor).
		Width(width-4).
		Padding(0, 1).
		Render(footer)

	styledContent := lipgloss.NewStyle().
		Width(width - 4).
		Render(content)

	border := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(width - 2)
	if height > 2 {
		border = border.Height(height - 2).AlignVertical(lipgloss.Top)
	}

	return border.Render(lipgloss.JoinVertical(lipgloss.Left, styledHeader, styledContent, styledFooter))
}
