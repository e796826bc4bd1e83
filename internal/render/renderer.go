// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"
	"strings"

	"github.com/muesli/termenv"
	"go.uber.org/zap"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DefaultWidth is used when no width source is configured.
const DefaultWidth = 80

// flushedLineCount is the line count kept after a paragraph flush: only the
// trailing blank line of the frozen paragraph is repainted by the next block.
const flushedLineCount = 1

// paragraphBreak closes the current paragraph when accumulated text ends with it.
const paragraphBreak = "\n\n"

// =============================================================================
// RENDERER
// =============================================================================

// Option configures a Renderer.
type Option func(*Renderer)

// WithFormatter sets how accumulated text is turned into printed output.
func WithFormatter(f Formatter) Option {
	return func(r *Renderer) { r.formatter = f }
}

// WithWidth sets the width source, queried on every redraw so terminal
// resizes are picked up.
func WithWidth(width func() int) Option {
	return func(r *Renderer) { r.width = width }
}

// WithLogger sets the logger for formatter failures.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) { r.logger = logger }
}

// Renderer redraws a streamed response in place. It is not safe for
// concurrent use; the caller hands the terminal to it exclusively.
type Renderer struct {
	w         io.Writer
	out       *termenv.Output
	formatter Formatter
	width     func() int
	logger    *zap.Logger

	accumulated   strings.Builder
	lastLineCount int
}

// New creates a Renderer writing to w.
func New(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		w:         w,
		out:       termenv.NewOutput(w),
		formatter: Raw,
		width:     func() int { return DefaultWidth },
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDelta appends text to the current paragraph and repaints it.
func (r *Renderer) OnDelta(text string) error {
	if text == "" {
		return nil
	}
	r.accumulated.WriteString(text)
	if err := r.redraw(); err != nil {
		return err
	}

	acc := r.accumulated.String()
	if strings.HasSuffix(acc, paragraphBreak) && !fenceOpen(acc) {
		r.FlushParagraph()
	}
	return nil
}

// FlushParagraph freezes what is on screen. Subsequent deltas start a new
// accumulation drawn below the frozen text.
func (r *Renderer) FlushParagraph() {
	if r.accumulated.Len() == 0 {
		return
	}
	r.accumulated.Reset()
	r.lastLineCount = flushedLineCount
}

// Finish ends the response. The last drawing stays on screen and the next
// response starts on a fresh line.
func (r *Renderer) Finish() error {
	r.accumulated.Reset()
	r.lastLineCount = 0
	return nil
}

// Println writes a line that is not part of the streamed markdown (status and
// tool notices). The current paragraph is finished first.
func (r *Renderer) Println(line string) error {
	if err := r.Finish(); err != nil {
		return err
	}
	_, err := io.WriteString(r.w, line+"\n")
	return err
}

// LineCount returns the number of rows the last redraw occupied.
func (r *Renderer) LineCount() int {
	return r.lastLineCount
}

// Accumulated returns the text of the current, not yet frozen paragraph.
func (r *Renderer) Accumulated() string {
	return r.accumulated.String()
}

// HideCursor hides the cursor on the renderer's output.
func (r *Renderer) HideCursor() *CursorGuard {
	return HideCursor(r.w)
}

// redraw clears the previous drawing and prints the current paragraph.
func (r *Renderer) redraw() error {
	width := r.width()
	if width <= 0 {
		width = DefaultWidth
	}

	rendered, err := r.formatter.Format(r.accumulated.String(), width)
	if err != nil {
		// Formatter failures fall back to the raw text.
		r.logger.Debug("markdown render failed", zap.Error(err))
		rendered = r.accumulated.String()
	}
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}

	if r.lastLineCount > 0 {
		r.out.ClearLines(r.lastLineCount)
	}
	if _, err := io.WriteString(r.w, rendered); err != nil {
		return err
	}
	r.lastLineCount = WrappedLineCount(rendered, width)
	return nil
}

// fenceOpen reports whether text ends inside a ``` code fence.
func fenceOpen(text string) bool {
	open := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			open = !open
		}
	}
	return open
}
