package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
)

// keyMap represents key map data used by this package.
type keyMap struct {
	quit           key.Binding
	toggleHelp     key.Binding
	moveUp         key.Binding
	moveDown       key.Binding
	nextSection    key.Binding
	prevSection    key.Binding
	editField      key.Binding
	cycleOption    key.Binding
	preview        key.Binding
	undo           key.Binding
	redo           key.Binding
	save           key.Binding
	toggleAutoSave key.Binding
	replay         key.Binding
	copyField      key.Binding
}

// newKeyMap builds the default bindings with the configurable ones taken from cfg.
func newKeyMap(cfg KeyConfig) keyMap {
	cfg = cfg.withDefaults()
	return keyMap{
		quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		toggleHelp:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "field up")),
		moveDown:       key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "field down")),
		nextSection:    key.NewBinding(key.WithKeys("tab", "l", "right"), key.WithHelp("tab", "next section")),
		prevSection:    key.NewBinding(key.WithKeys("shift+tab", "h", "left"), key.WithHelp("shift+tab", "prev section")),
		editField:      key.NewBinding(key.WithKeys("enter", "e"), key.WithHelp("enter", "edit field")),
		cycleOption:    key.NewBinding(key.WithKeys("space"), key.WithHelp("space", "next option")),
		preview:        key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview markdown")),
		undo:           key.NewBinding(key.WithKeys(cfg.Undo), key.WithHelp(cfg.Undo, "undo")),
		redo:           key.NewBinding(key.WithKeys(cfg.Redo), key.WithHelp(cfg.Redo, "redo")),
		save:           key.NewBinding(key.WithKeys(cfg.Save), key.WithHelp(cfg.Save, "save")),
		toggleAutoSave: key.NewBinding(key.WithKeys(cfg.ToggleAutoSave), key.WithHelp(cfg.ToggleAutoSave, "toggle auto-save")),
		replay:         key.NewBinding(key.WithKeys(cfg.Replay), key.WithHelp(cfg.Replay, "sync queue")),
		copyField:      key.NewBinding(key.WithKeys(cfg.Copy), key.WithHelp(cfg.Copy, "copy field")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.editField, k.undo, k.redo, k.save, k.toggleAutoSave, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.nextSection, k.prevSection},
		{k.editField, k.cycleOption, k.preview, k.copyField},
		{k.undo, k.redo, k.save, k.toggleAutoSave, k.replay},
		{k.toggleHelp, k.quit},
	}
}

// bindingKey returns the first trimmed key, or fallback.
func bindingKey(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}
