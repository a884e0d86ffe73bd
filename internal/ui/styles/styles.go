// Package styles defines the terminal styling for command output.
package styles

import "github.com/charmbracelet/lipgloss"

// Color definitions for the polar theme.
var (
	Primary = lipgloss.Color("39")  // Blue
	Subtle  = lipgloss.Color("240") // Gray

	// Status colors
	Success = lipgloss.Color("42")  // Green
	Error   = lipgloss.Color("196") // Red
	Warning = lipgloss.Color("220") // Yellow
)

// TitleStyle is used for section headings.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary)

// LabelStyle is used for slot labels in tables.
var LabelStyle = lipgloss.NewStyle().
	Foreground(Subtle).
	Width(5)

// SuccessStyle is used for completed-run messages.
var SuccessStyle = lipgloss.NewStyle().
	Foreground(Success)

// ErrorStyle is used for failures.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Error)

// WarningStyle is used for non-fatal conditions.
var WarningStyle = lipgloss.NewStyle().
	Foreground(Warning)
