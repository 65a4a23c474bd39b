package components

import (
	"fmt"
	"time"

	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// Counts tallies probe results by classification
type Counts struct {
	Confirmed    int
	Unknown      int
	Unresponsive int
}

// Add counts one result.
func (c *Counts) Add(r mdt.ProbeResult) {
	switch r.Class {
	case mdt.ClassConfirmed:
		c.Confirmed++
	case mdt.ClassUnknown:
		c.Unknown++
	default:
		c.Unresponsive++
	}
}

func (c Counts) Total() int {
	return c.Confirmed + c.Unknown + c.Unresponsive
}

type StatusBar struct {
	title    string
	scanning bool
	counts   Counts
	elapsed  time.Duration
	err      error
	width    int
}

func NewStatusBar(title string) *StatusBar {
	return &StatusBar{title: title}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetScanning(scanning bool) {
	sb.scanning = scanning
	if scanning {
		sb.err = nil
		sb.counts = Counts{}
	}
}

func (sb *StatusBar) SetCounts(c Counts) {
	sb.counts = c
}

func (sb *StatusBar) SetElapsed(d time.Duration) {
	sb.elapsed = d
}

func (sb *StatusBar) SetError(err error) {
	sb.err = err
}

// View renders mode, title and counts on the left and elapsed time on the
// right, filling the terminal width.
func (sb *StatusBar) View() string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	// Section 1: Mode indicator
	modeStyle := lipgloss.NewStyle().
		Foreground(colors.Base).
		Bold(true).
		Padding(0, 1)
	modeText := "DONE"
	switch {
	case sb.err != nil:
		modeStyle = modeStyle.Background(colors.Red)
		modeText = "ERROR"
	case sb.scanning:
		modeStyle = modeStyle.Background(colors.Peach)
		modeText = "SCANNING"
	default:
		modeStyle = modeStyle.Background(colors.Blue)
	}
	mode := modeStyle.Render(modeText)

	// Section 2: Title
	titleStyle := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1)
	title := titleStyle.Render(sb.title)

	// Section 3: Counts
	countStyle := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c).Padding(0, 1)
	}
	counts := lipgloss.JoinHorizontal(lipgloss.Left,
		countStyle(colors.Confirmed).Render(fmt.Sprintf("● %d mdt", sb.counts.Confirmed)),
		countStyle(colors.Unknown).Render(fmt.Sprintf("○ %d unknown", sb.counts.Unknown)),
		countStyle(colors.Unresponsive).Render(fmt.Sprintf("✗ %d unresponsive", sb.counts.Unresponsive)),
	)

	dividerStyle := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1)
	divider := dividerStyle.Render("│")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, mode, title, divider, counts)

	var right string
	if sb.err != nil {
		right = lipgloss.NewStyle().Foreground(colors.Red).Padding(0, 1).Render(sb.err.Error())
	} else {
		right = lipgloss.NewStyle().Foreground(colors.Subtext1).Padding(0, 1).
			Render(sb.elapsed.Round(time.Millisecond).String())
	}
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, divider, right)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	statusBarStyle := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth)

	return statusBarStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
