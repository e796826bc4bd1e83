// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"
	"sync"

	"github.com/muesli/termenv"
)

// CursorGuard restores the cursor hidden by HideCursor. Restore runs at most
// once, so it can be deferred and also called early.
type CursorGuard struct {
	out  *termenv.Output
	once sync.Once
}

// HideCursor hides the cursor on w and returns the guard that shows it again.
//
//	guard := render.HideCursor(os.Stdout)
//	defer guard.Restore()
func HideCursor(w io.Writer) *CursorGuard {
	out := termenv.NewOutput(w)
	out.HideCursor()
	return &CursorGuard{out: out}
}

// Restore shows the cursor again.
func (g *CursorGuard) Restore() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.out.ShowCursor()
	})
}

// RestoreTerminal shows the cursor and ends the current line. Signal handlers
// call it before the process exits.
func RestoreTerminal(w io.Writer) {
	out := termenv.NewOutput(w)
	out.ShowCursor()
	_, _ = io.WriteString(w, "\n")
}
