package main

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer renders replies for the terminal. A nil renderer prints
// text unchanged.
type markdownRenderer struct {
	r *glamour.TermRenderer
}

func newMarkdownRenderer(raw bool, style string) *markdownRenderer {
	if raw {
		return &markdownRenderer{}
	}
	opt := glamour.WithAutoStyle()
	if style != "" {
		opt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(100))
	if err != nil {
		return &markdownRenderer{}
	}
	return &markdownRenderer{r: r}
}

func (m *markdownRenderer) Render(content string) string {
	if m == nil || m.r == nil || content == "" {
		return content
	}
	out, err := m.r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
