package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	minPreviewWidth     = 24
	defaultPreviewStyle = "dark"
)

// previewRenderer turns markdown field values into terminal text.
// One glamour renderer is kept per style and wrap width.
type previewRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
}

func newPreviewRenderer(style string) *previewRenderer {
	style = strings.TrimSpace(style)
	if style == "" {
		style = defaultPreviewStyle
	}
	return &previewRenderer{style: style}
}

// render returns value as styled text wrapped to width. Plain text is
// returned when glamour cannot build or render.
func (r *previewRenderer) render(value string, width int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if r == nil {
		return value
	}
	width = max(width, minPreviewWidth)
	if r.renderer == nil || r.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return value
		}
		r.renderer = renderer
		r.width = width
	}
	out, err := r.renderer.Render(value)
	if err != nil {
		return value
	}
	return strings.TrimRight(out, "\n")
}
