package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the application key bindings
type keyMap struct {
	Open        key.Binding
	Back        key.Binding
	Favorite    key.Binding
	Like        key.Binding
	Share       key.Binding
	Draft       key.Binding
	Search      key.Binding
	Preferences key.Binding
	Refresh     key.Binding
	Dismiss     key.Binding
	Quit        key.Binding
}

var keys = keyMap{
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "read"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Favorite: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "favorite"),
	),
	Like: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "like"),
	),
	Share: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "share"),
	),
	Draft: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new retelling"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Preferences: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "preferences"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "dismiss"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
