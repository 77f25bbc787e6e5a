// Package ui renders the arrangement canvas in the terminal: a scaled map
// of the virtual desktop where displays are dragged with the mouse or
// nudged with the keyboard, then applied or saved as a profile.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	ColorText      = lipgloss.Color("252") // Light gray
	ColorSubtle    = lipgloss.Color("241") // Medium gray
	ColorMuted     = lipgloss.Color("238") // Dark gray
	ColorHighlight = lipgloss.Color("255") // White
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	PromptStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)
)

// Tile styles, one per display state on the canvas. The dragged display is
// the brightest thing on screen; disabled outputs recede into the
// background.
var (
	tileStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	tileSelectedStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true)

	tileDraggingStyle = lipgloss.NewStyle().
				Foreground(ColorSecondary).
				Bold(true)

	tileDisabledStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)

	tilePrimaryMarkStyle = lipgloss.NewStyle().
				Foreground(ColorWarning)
)
