// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// tabStop is the column interval terminals expand tabs to.
const tabStop = 8

// WrappedLineCount returns how many terminal rows rendered occupies when
// printed at width columns. ANSI sequences are stripped before measuring.
// A trailing newline ends the last row and does not start a new one.
func WrappedLineCount(rendered string, width int) int {
	if rendered == "" {
		return 0
	}
	if width <= 0 {
		width = DefaultWidth
	}

	plain := strings.TrimSuffix(ansi.Strip(rendered), "\n")
	rows := 0
	for _, line := range strings.Split(plain, "\n") {
		w := DisplayWidth(line)
		if w <= width {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}

// DisplayWidth is the column width of an ANSI-free line, with tabs expanded.
func DisplayWidth(line string) int {
	line = strings.TrimRight(line, "\r")
	if !strings.Contains(line, "\t") {
		return runewidth.StringWidth(line)
	}
	col := 0
	for _, r := range line {
		if r == '\t' {
			col += tabStop - col%tabStop
			continue
		}
		col += runewidth.RuneWidth(r)
	}
	return col
}
