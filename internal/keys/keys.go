package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the lead board.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Pipeline columns
	NextStatus key.Binding
	PrevStatus key.Binding

	// Selected lead
	Open key.Binding
	Note key.Binding

	// Status changes on the selected lead
	Advance key.Binding
	Won     key.Binding
	Lost    key.Binding

	// Reminders
	Reminders  key.Binding
	Complete   key.Binding
	FollowUp   key.Binding
	DismissTip key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Help toggle
	Help key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		NextStatus: key.NewBinding(
			key.WithKeys("l", "right", "tab"),
			key.WithHelp("l/→", "next column"),
		),
		PrevStatus: key.NewBinding(
			key.WithKeys("h", "left", "shift+tab"),
			key.WithHelp("h/←", "previous column"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open lead"),
		),
		Note: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "add note"),
		),
		Advance: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "advance status"),
		),
		Won: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "mark won"),
		),
		Lost: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "mark lost"),
		),
		Reminders: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "due reminders"),
		),
		Complete: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "complete reminder"),
		),
		FollowUp: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "schedule follow-up"),
		),
		DismissTip: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss follow-up"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.PrevStatus, k.NextStatus,
		k.Open, k.Advance, k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PrevStatus, k.NextStatus},
		{k.Open, k.Note, k.Advance, k.Won, k.Lost},
		{k.Reminders, k.Complete, k.FollowUp, k.DismissTip},
		{k.Back, k.Quit, k.Help},
	}
}
