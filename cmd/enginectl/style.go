package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/clustersmith/enginecore/internal/types"
)

// Status colors mirror cmd/bd-examples' pass/warn/fail/muted/accent palette,
// remapped onto action lifecycle states instead of test outcomes.
var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	})
)

// styleStatus colors an action status for terminal output: green once it's
// done successfully, red once it's failed or been cancelled, yellow while
// running, muted while still waiting on dependencies.
func styleStatus(s types.ActionStatus) string {
	switch s {
	case types.ActionSucceeded:
		return passStyle.Render(string(s))
	case types.ActionFailed, types.ActionCancelled:
		return failStyle.Render(string(s))
	case types.ActionRunning:
		return warnStyle.Render(string(s))
	case types.ActionReady:
		return accentStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}
