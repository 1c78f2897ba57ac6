// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import "github.com/charmbracelet/lipgloss"

// Theme styles the prompts.
type Theme struct {
	Title  lipgloss.Style
	Answer lipgloss.Style
	Help   lipgloss.Style
	Error  lipgloss.Style
}

// DefaultTheme returns the styles used by the terminal prompter.
func DefaultTheme() Theme {
	return Theme{
		Title:  lipgloss.NewStyle().Bold(true),
		Answer: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		Help:   lipgloss.NewStyle().Faint(true),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}
