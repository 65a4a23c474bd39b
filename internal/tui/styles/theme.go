package styles

import (
	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Header styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0)

	// Table styles
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Text)

	BaseStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext1).
			BorderForeground(colors.Surface1).
			Align(lipgloss.Left)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(colors.Text).
			Background(colors.Surface1)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(colors.Peach)

	// Error styles
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)

	// Info styles
	InfoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve)

	confirmedStyle    = lipgloss.NewStyle().Foreground(colors.Confirmed).Bold(true)
	unknownStyle      = lipgloss.NewStyle().Foreground(colors.Unknown)
	unresponsiveStyle = lipgloss.NewStyle().Foreground(colors.Unresponsive).Faint(true)

	// Controller state styles
	StatusConnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusConnectingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	ClampedStyle = lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true)
)

// ClassStyle returns the style a classification is rendered in.
func ClassStyle(c mdt.Classification) lipgloss.Style {
	switch c {
	case mdt.ClassConfirmed:
		return confirmedStyle
	case mdt.ClassUnknown:
		return unknownStyle
	default:
		return unresponsiveStyle
	}
}

func GetStatusStyle(state mdt.State) lipgloss.Style {
	switch state {
	case mdt.StateConnected:
		return StatusConnectedStyle
	case mdt.StateConnecting:
		return StatusConnectingStyle
	default:
		return StatusDisconnectedStyle
	}
}
