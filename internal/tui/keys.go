package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left, Right, Up, Down key.Binding
	NextChip, Open, More  key.Binding
	Close                 key.Binding
	Next, Prev, Today     key.Binding
	Month, Week, Day      key.Binding
	Agenda                key.Binding
	Sync, Quit            key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Left:     key.NewBinding(key.WithKeys("left", "h")),
		Right:    key.NewBinding(key.WithKeys("right", "l")),
		Up:       key.NewBinding(key.WithKeys("up", "k")),
		Down:     key.NewBinding(key.WithKeys("down", "j")),
		NextChip: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "chip")),
		Open:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		More:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "more")),
		Close:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Next:     key.NewBinding(key.WithKeys("n", "pgdown"), key.WithHelp("n/p", "next/prev")),
		Prev:     key.NewBinding(key.WithKeys("p", "pgup")),
		Today:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "today")),
		Month:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m/w/d/a", "view")),
		Week:     key.NewBinding(key.WithKeys("w")),
		Day:      key.NewBinding(key.WithKeys("d")),
		Agenda:   key.NewBinding(key.WithKeys("a")),
		Sync:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "sync")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp lists the bindings shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextChip, k.Open, k.More, k.Close, k.Next, k.Today, k.Month, k.Sync, k.Quit}
}
