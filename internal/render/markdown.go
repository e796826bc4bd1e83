// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// =============================================================================
// FORMATTERS
// =============================================================================

// Formatter converts accumulated response text into what is printed.
type Formatter interface {
	Format(text string, width int) (string, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(text string, width int) (string, error)

// Format calls f.
func (f FormatterFunc) Format(text string, width int) (string, error) { return f(text, width) }

// Raw prints text unchanged.
var Raw = FormatterFunc(func(text string, _ int) (string, error) { return text, nil })

// Style names accepted by NewMarkdown.
const (
	StyleDark  = styles.DarkStyle
	StyleLight = styles.LightStyle
	StyleNoTTY = styles.NoTTYStyle
)

// wrapMargin keeps glamour's block margins inside the terminal.
const wrapMargin = 4

// Markdown renders markdown to ANSI with glamour. Term renderers are built
// lazily and cached per width so a resize only costs one rebuild.
type Markdown struct {
	style string

	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown returns a glamour-backed Formatter using the named standard style.
func NewMarkdown(style string) *Markdown {
	if style == "" {
		style = StyleDark
	}
	return &Markdown{style: style, renderers: make(map[int]*glamour.TermRenderer)}
}

// Format renders text at width columns.
func (m *Markdown) Format(text string, width int) (string, error) {
	r, err := m.renderer(width)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

func (m *Markdown) renderer(width int) (*glamour.TermRenderer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.renderers[width]; ok {
		return r, nil
	}
	wrap := width - wrapMargin
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil, err
	}
	m.renderers[width] = r
	return r, nil
}
