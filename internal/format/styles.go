// Package format holds the terminal styling shared by the CLI layer.
package format

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle marks a phase/section header ("Verifying ExtHeader...").
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // Bright white

	// TitleStyle is a bold cyan style for title lines. The CLI does not
	// print any line with it.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14")) // Cyan

	// LabelStyle marks a key in a key/value line.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")). // Bright blue
			Bold(true)

	// ValueStyle marks a value in a key/value line.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")) // Bright white

	// DimStyle marks secondary information (elapsed time, byte counts).
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")). // Gray
			Faint(true)

	// OKStyle marks a successful conversion.
	OKStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")) // Green

	// ErrorStyle marks an aborted conversion.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")). // Red
			Bold(true)
)
