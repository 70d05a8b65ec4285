// Package tui holds the bubbletea models for the live monitor and the
// pattern editor.
package tui

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	keyUp    = "up"
	keyDown  = "down"
	keyLeft  = "left"
	keyRight = "right"
)

// tickMsg drives polling and pattern playback.
type tickMsg time.Time

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAFF")).
			Bold(true)

	midiStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	logStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	logHighlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	dimStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
)

// barColors is a cyan to magenta gradient, one color per cell.
var barColors = []string{
	"#00FFFF", "#00E5FF", "#00CCFF", "#00B2FF",
	"#0099FF", "#0080FF", "#0066FF", "#1A4DFF",
	"#3333FF", "#4D1AFF", "#6600FF", "#8000FF",
	"#9900FF", "#B300FF", "#CC00FF", "#FF00FF",
}
