package cmd

import "github.com/charmbracelet/lipgloss"

// Terminal theme for human-facing output.
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ff88"))

	styleSuccess = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ff88"))

	styleWarning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fbbf24"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff4444"))

	styleMuted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#737373"))

	styleBold = lipgloss.NewStyle().Bold(true)
)

func renderTitle(msg string) string   { return styleTitle.Render(msg) }
func renderSuccess(msg string) string { return styleSuccess.Render("✓ " + msg) }
func renderWarning(msg string) string { return styleWarning.Render("⚠ " + msg) }
func renderError(msg string) string   { return styleError.Render("✗ " + msg) }
func renderMuted(msg string) string   { return styleMuted.Render(msg) }
