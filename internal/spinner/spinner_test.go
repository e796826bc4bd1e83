// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package spinner

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/termai/internal/stream"
)

const (
	hideCursorSeq = "\x1b[?25l"
	showCursorSeq = "\x1b[?25h"
)

// syncBuffer is a bytes.Buffer safe for the ticker goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fast() Option {
	return WithFrames(spinner.Spinner{Frames: []string{"a", "b", "c"}, FPS: 5 * time.Millisecond})
}

func TestCoordinator_StateMachine(t *testing.T) {
	c := New(&syncBuffer{}, fast())
	assert.Equal(t, Idle, c.State())

	c.Start()
	assert.Equal(t, Ticking, c.State())

	c.Handle(stream.PauseEvent())
	assert.Equal(t, Paused, c.State())

	c.Handle(stream.ResumeEvent())
	assert.Equal(t, Ticking, c.State())

	c.Handle(stream.TextEvent("hi"))
	assert.Equal(t, Finished, c.State())

	// Tool prompt after text already started.
	c.Handle(stream.PauseEvent())
	assert.Equal(t, Paused, c.State())
	c.Handle(stream.ResumeEvent())
	assert.Equal(t, Ticking, c.State())

	c.Handle(stream.ToolCallEvent(stream.ToolCall{ID: "1", Name: "x"}))
	assert.Equal(t, Finished, c.State())

	c.Stop()
	assert.Equal(t, Idle, c.State())
}

func TestCoordinator_IgnoresInvalidTransitions(t *testing.T) {
	c := New(&syncBuffer{}, fast())
	c.Pause()
	assert.Equal(t, Idle, c.State(), "pause from idle is a no-op")
	c.Resume()
	assert.Equal(t, Idle, c.State(), "resume without pause is a no-op")
	c.Finish()
	assert.Equal(t, Idle, c.State())

	c.Start()
	c.Start()
	assert.Equal(t, Ticking, c.State())
	c.Resume()
	assert.Equal(t, Ticking, c.State())
	c.Stop()
}

func TestCoordinator_AnimatesAndClears(t *testing.T) {
	out := &syncBuffer{}
	c := New(out, fast(), WithMessage("Working"))
	c.Start()

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "b ") && strings.Contains(s, "c ")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "Working")
	assert.Contains(t, out.String(), hideCursorSeq)

	c.Finish()
	after := out.String()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, out.String(), "no frames written after Finish")
	assert.True(t, strings.HasSuffix(after, "\r\x1b[2K"), "spinner line removed, got %q", after[len(after)-8:])
}

func TestCoordinator_PauseShowsCursorAndStopsTicking(t *testing.T) {
	out := &syncBuffer{}
	c := New(out, fast())
	c.Start()
	c.Pause()

	paused := out.String()
	assert.True(t, strings.HasSuffix(paused, showCursorSeq), "cursor visible for the prompt")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, paused, out.String(), "no frames while paused")

	c.Resume()
	assert.Contains(t, strings.TrimPrefix(out.String(), paused), hideCursorSeq)
	c.Stop()
}
