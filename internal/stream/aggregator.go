// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// ERRORS
// =============================================================================

// TransportError is a read failure in the middle of a stream. Partial holds
// the text received before the failure.
type TransportError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// TOOL CALL ACCUMULATOR
// =============================================================================

type pendingCall struct {
	id    string
	name  string
	args  strings.Builder
	order int
}

// toolAccumulator assembles tool-call fragments for one turn. Calls are keyed
// by their block/choice index; the id recorded with the first fragment (or a
// synthesized one) correlates them afterwards.
type toolAccumulator struct {
	calls  map[int]*pendingCall
	seq    int
	nextID func() string
}

func newToolAccumulator(nextID func() string) *toolAccumulator {
	return &toolAccumulator{calls: make(map[int]*pendingCall), nextID: nextID}
}

func (t *toolAccumulator) add(f ToolFragment) {
	call, ok := t.calls[f.Index]
	if !ok {
		call = &pendingCall{order: t.seq}
		t.seq++
		t.calls[f.Index] = call
	}
	if call.id == "" {
		call.id = f.ID
		if call.id == "" {
			call.id = t.nextID()
		}
	}
	if f.Name != "" {
		call.name = f.Name
	}
	call.args.WriteString(f.Arguments)
}

func (t *toolAccumulator) take(index int) (ToolCall, bool) {
	call, ok := t.calls[index]
	if !ok {
		return ToolCall{}, false
	}
	delete(t.calls, index)
	return call.assemble(), true
}

// drain removes every pending call in first-seen order.
func (t *toolAccumulator) drain() []ToolCall {
	pending := make([]*pendingCall, 0, len(t.calls))
	for _, c := range t.calls {
		pending = append(pending, c)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].order < pending[j].order })

	out := make([]ToolCall, 0, len(pending))
	for _, c := range pending {
		out = append(out, c.assemble())
	}
	t.calls = make(map[int]*pendingCall)
	return out
}

func (t *toolAccumulator) len() int { return len(t.calls) }

func (c *pendingCall) assemble() ToolCall {
	args := strings.TrimSpace(c.args.String())
	if args == "" {
		args = "{}"
	}
	return ToolCall{ID: c.id, Name: c.name, Arguments: args}
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithIDPrefix sets the prefix of synthesized tool-call ids. Ids are formed
// as prefix + counter, the counter starting at 1 for every Aggregator.
func WithIDPrefix(prefix string) Option {
	return func(a *Aggregator) { a.idPrefix = prefix }
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithContext closes the body as soon as ctx is done, unblocking a pending read.
func WithContext(ctx context.Context) Option {
	return func(a *Aggregator) { a.ctx = ctx }
}

// Aggregator turns one streamed response body into Events. It is single-pass
// and one-shot: once Done has been yielded Next returns false forever.
type Aggregator struct {
	kind     ProviderKind
	body     io.ReadCloser
	lines    *LineReader
	tools    *toolAccumulator
	idPrefix string
	idSeq    int
	logger   *zap.Logger
	ctx      context.Context

	queue   []Event
	current Event
	text    strings.Builder
	err     error
	ended   bool

	closeOnce sync.Once
	closeErr  error
	stopWatch func() bool
}

// New creates an Aggregator reading body in the wire format of kind.
func New(body io.ReadCloser, kind ProviderKind, opts ...Option) *Aggregator {
	a := &Aggregator{
		kind:     kind,
		body:     body,
		lines:    NewLineReader(body),
		idPrefix: "call_",
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.tools = newToolAccumulator(a.synthesizeID)
	if a.ctx != nil {
		a.stopWatch = context.AfterFunc(a.ctx, func() { _ = a.Close() })
	}
	return a
}

func (a *Aggregator) synthesizeID() string {
	a.idSeq++
	return fmt.Sprintf("%s%d", a.idPrefix, a.idSeq)
}

// Next advances to the next event.
func (a *Aggregator) Next() bool {
	for len(a.queue) == 0 {
		if a.ended {
			return false
		}
		a.fill()
	}
	a.current = a.queue[0]
	a.queue = a.queue[1:]
	return true
}

// Current returns the event Next advanced to.
func (a *Aggregator) Current() Event {
	return a.current
}

// Err returns the transport error that ended the stream, if any.
func (a *Aggregator) Err() error {
	return a.err
}

// Close closes the response body. Safe to call repeatedly.
func (a *Aggregator) Close() error {
	a.closeOnce.Do(func() {
		if a.stopWatch != nil {
			a.stopWatch()
		}
		a.closeErr = a.body.Close()
	})
	return a.closeErr
}

// fill reads one line and queues whatever events it produces.
func (a *Aggregator) fill() {
	line, err := a.lines.ReadLine()
	if err != nil {
		a.finish(err)
		return
	}

	delta, ok := Parse(line, a.kind)
	if !ok {
		return
	}

	switch delta.Kind {
	case DeltaText:
		if delta.Text != "" {
			a.text.WriteString(delta.Text)
			a.queue = append(a.queue, TextEvent(delta.Text))
		}
	case DeltaTool:
		for _, f := range delta.Fragments {
			a.tools.add(f)
		}
	case DeltaBlockStop:
		if call, ok := a.tools.take(delta.Index); ok {
			a.queue = append(a.queue, ToolCallEvent(call))
		}
	case DeltaError:
		a.logger.Debug("stream error", zap.String("provider", a.kind.String()), zap.Bool("fatal", delta.Fatal), zap.String("message", delta.Text))
		ev, _ := delta.Event()
		a.queue = append(a.queue, ev)
	}

	// A finish reason closes every block still open (OpenAI has no per-block stop).
	if delta.Reason != "" || delta.Kind == DeltaFinish {
		for _, call := range a.tools.drain() {
			a.queue = append(a.queue, ToolCallEvent(call))
		}
	}
}

// finish ends the stream after a read error or EOF.
func (a *Aggregator) finish(err error) {
	a.ended = true

	if a.tools.len() > 0 {
		for _, call := range a.tools.drain() {
			a.queue = append(a.queue, ErrorEvent(fmt.Sprintf("stream ended before tool call %s (%s) completed", call.ID, call.Name)))
		}
	}

	if !errors.Is(err, io.EOF) {
		if a.ctx != nil && a.ctx.Err() != nil {
			err = a.ctx.Err()
		}
		a.err = &TransportError{Partial: a.text.String(), Err: err}
		a.logger.Warn("stream transport error", zap.String("provider", a.kind.String()), zap.Error(err))
		a.queue = append(a.queue, ErrorEvent(a.err.Error()))
	}

	a.queue = append(a.queue, DoneEvent())
	_ = a.Close()
}

// =============================================================================
// REPLAY
// =============================================================================

// Replay is a Stream over a fixed list of events, used for responses that
// were received in one piece.
type Replay struct {
	events []Event
	pos    int
	cur    Event
}

// NewReplay returns a Stream yielding events in order. A trailing Done is
// appended when missing.
func NewReplay(events []Event) *Replay {
	if len(events) == 0 || events[len(events)-1].Kind != EventDone {
		events = append(events, DoneEvent())
	}
	return &Replay{events: events}
}

// Next advances to the next event.
func (r *Replay) Next() bool {
	if r.pos >= len(r.events) {
		return false
	}
	r.cur = r.events[r.pos]
	r.pos++
	return true
}

// Current returns the event Next advanced to.
func (r *Replay) Current() Event { return r.cur }

// Err always returns nil; a replay has no transport.
func (r *Replay) Err() error { return nil }

// Close is a no-op.
func (r *Replay) Close() error { return nil }
