package keys

import "github.com/charmbracelet/bubbles/key"

// Common key bindings used across TUI commands
type CommonKeys struct {
	Quit key.Binding
	Help key.Binding
}

func NewCommonKeys() CommonKeys {
	return CommonKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

// DiscoverKeys are the bindings of the discovery view
type DiscoverKeys struct {
	CommonKeys
	Select key.Binding
	Rescan key.Binding
	Up     key.Binding
	Down   key.Binding
}

func NewDiscoverKeys() DiscoverKeys {
	return DiscoverKeys{
		CommonKeys: NewCommonKeys(),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select port"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
	}
}

func (k DiscoverKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Select, k.Rescan, k.Quit}
}

func (k DiscoverKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Rescan, k.Help, k.Quit},
	}
}
