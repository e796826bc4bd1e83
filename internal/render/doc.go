// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render draws a streamed markdown response in place.
//
// Each delta triggers a full repaint of the current paragraph: the previous
// drawing is cleared line by line and the markdown of everything accumulated
// since the last paragraph boundary is rendered again at terminal width.
// Once the text ends with a blank line the paragraph is frozen and later
// deltas are drawn below it, so repaint cost stays bounded by one paragraph.
//
// The package also owns the cursor: HideCursor returns a guard whose
// Restore is deferred by callers, and RestoreTerminal is the process-wide
// teardown used by signal handlers.
package render
