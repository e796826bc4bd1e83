// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package spinner animates a "Thinking..." line while a response is pending.
//
// The Coordinator is a small state machine driven by stream events. It never
// shares the terminal with the renderer or a confirmation prompt: it clears
// its line before the first response text is drawn and before a prompt is
// shown, and only animates again once the prompt is resolved.
package spinner

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/termai/internal/stream"
)

// =============================================================================
// STATE
// =============================================================================

// State is the coordinator's animation state.
type State int

const (
	Idle State = iota
	Ticking
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ticking:
		return "ticking"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultMessage is shown next to the animation.
const DefaultMessage = "Thinking..."

var messageStyle = lipgloss.NewStyle().Faint(true).Bold(true)

// =============================================================================
// COORDINATOR
// =============================================================================

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFrames replaces the animation frames and tick interval.
func WithFrames(s spinner.Spinner) Option {
	return func(c *Coordinator) { c.frames = s }
}

// WithMessage sets the text shown next to the animation.
func WithMessage(msg string) Option {
	return func(c *Coordinator) { c.message = msg }
}

// Coordinator owns the spinner line. All methods are safe for concurrent use.
type Coordinator struct {
	w       io.Writer
	out     *termenv.Output
	frames  spinner.Spinner
	message string

	mu    sync.Mutex
	state State
	frame int
	stop  chan struct{}
	done  chan struct{}
}

// New creates an idle Coordinator writing to w.
func New(w io.Writer, opts ...Option) *Coordinator {
	c := &Coordinator{
		w:   w,
		out: termenv.NewOutput(w),
		frames: spinner.Spinner{
			Frames: spinner.Line.Frames,
			FPS:    time.Second / 10,
		},
		message: DefaultMessage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins animating. It hides the cursor.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Ticking {
		return
	}
	c.out.HideCursor()
	c.startLocked()
}

// Pause stops the animation and clears its line so a prompt can use the
// terminal. The cursor is shown while paused.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Ticking:
		c.state = Paused
		c.stopLocked()
		c.clearLocked()
	case Finished:
		c.state = Paused
	default:
		return
	}
	c.out.ShowCursor()
}

// Resume restarts the animation after a pause and hides the cursor again.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return
	}
	c.out.HideCursor()
	c.startLocked()
}

// Finish stops the animation and removes the spinner line entirely. The
// cursor is left as is; the renderer owns it while text streams.
func (c *Coordinator) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Ticking:
		c.state = Finished
		c.stopLocked()
		c.clearLocked()
	case Paused:
		c.state = Finished
	}
}

// Stop finishes the spinner and returns it to Idle for the next turn.
func (c *Coordinator) Stop() {
	c.Finish()
	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()
}

// Handle applies the transition for one stream event.
func (c *Coordinator) Handle(ev stream.Event) {
	switch ev.Kind {
	case stream.EventText, stream.EventToolCallRequest, stream.EventError, stream.EventDone:
		c.Finish()
	case stream.EventPauseRendering:
		c.Pause()
	case stream.EventResumeRendering:
		c.Resume()
	}
}

func (c *Coordinator) startLocked() {
	c.state = Ticking
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.drawLocked()
	go c.tick(c.stop, c.done)
}

// stopLocked waits for the ticker goroutine so no frame is written after it.
// The state must already have left Ticking. The goroutine gives up c.mu as
// soon as it sees stop closed, so waiting with the lock released is safe.
func (c *Coordinator) stopLocked() {
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	close(stop)
	c.mu.Unlock()
	<-done
	c.mu.Lock()
}

func (c *Coordinator) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.frames.FPS)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			select {
			case <-stop:
				c.mu.Unlock()
				return
			default:
			}
			c.frame = (c.frame + 1) % len(c.frames.Frames)
			c.drawLocked()
			c.mu.Unlock()
		}
	}
}

func (c *Coordinator) drawLocked() {
	_, _ = io.WriteString(c.w, "\r")
	c.out.ClearLine()
	_, _ = fmt.Fprintf(c.w, "%s %s", c.frames.Frames[c.frame], messageStyle.Render(c.message))
}

func (c *Coordinator) clearLocked() {
	_, _ = io.WriteString(c.w, "\r")
	c.out.ClearLine()
}
