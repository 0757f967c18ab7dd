package tui

import (
	"time"

	"github.com/taskerco/complaintdesk/internal/formdef"
)

// KeyConfig holds the rebindable editor keys.
type KeyConfig struct {
	Undo           string
	Redo           string
	Save           string
	ToggleAutoSave string
	Replay         string
	Copy           string
}

func DefaultKeyConfig() KeyConfig {
	return KeyConfig{
		Undo:           "u",
		Redo:           "U",
		Save:           "s",
		ToggleAutoSave: "a",
		Replay:         "r",
		Copy:           "y",
	}
}

func (k KeyConfig) withDefaults() KeyConfig {
	defaults := DefaultKeyConfig()
	return KeyConfig{
		Undo:           bindingKey(k.Undo, defaults.Undo),
		Redo:           bindingKey(k.Redo, defaults.Redo),
		Save:           bindingKey(k.Save, defaults.Save),
		ToggleAutoSave: bindingKey(k.ToggleAutoSave, defaults.ToggleAutoSave),
		Replay:         bindingKey(k.Replay, defaults.Replay),
		Copy:           bindingKey(k.Copy, defaults.Copy),
	}
}

type Option func(*Model)

func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys = newKeyMap(cfg)
	}
}

func WithDefinition(def formdef.Definition) Option {
	return func(m *Model) {
		if len(def.Sections) > 0 {
			m.def = def
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

func WithTickInterval(every time.Duration) Option {
	return func(m *Model) {
		if every > 0 {
			m.tickEvery = every
		}
	}
}

// WithPreviewStyle selects the glamour style used for markdown previews.
func WithPreviewStyle(style string) Option {
	return func(m *Model) {
		m.preview = newPreviewRenderer(style)
	}
}
