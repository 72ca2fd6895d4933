package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	Back     key.Binding
	Enter    key.Binding
	Navigate key.Binding
	Move     key.Binding
	Scroll   key.Binding
	Right    key.Binding
	Middle   key.Binding
	Media    key.Binding
	Volume   key.Binding
	Trigger  key.Binding
	Type     key.Binding
	Ping     key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "left click")),
	Navigate: key.NewBinding(key.WithKeys("up", "down", "left", "right"), key.WithHelp("←↑↓→", "navigate")),
	Move:     key.NewBinding(key.WithKeys("h", "j", "k", "l"), key.WithHelp("hjkl", "move")),
	Scroll:   key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "scroll")),
	Right:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "right click")),
	Middle:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "middle click")),
	Media:    key.NewBinding(key.WithKeys(" ", "space", "n", "b"), key.WithHelp("space/n/b", "play/next/prev")),
	Volume:   key.NewBinding(key.WithKeys("+", "=", "-"), key.WithHelp("+/-", "volume")),
	Trigger:  key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "trigger")),
	Type:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "type text")),
	Ping:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "ping")),
}
