// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/termai/internal/stream"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Request is what a Transport sends for one turn.
type Request struct {
	Messages []Message
	Tools    []ToolSpec

	// IDPrefix prefixes tool-call ids synthesized for this turn.
	IDPrefix string
}

// Transport opens the response stream for one turn.
type Transport interface {
	Open(ctx context.Context, req Request) (stream.Stream, error)
}

// ToolExecutor runs a tool by name with JSON arguments.
type ToolExecutor interface {
	Call(ctx context.Context, name, arguments string) (string, error)
}

// Confirmer asks the user whether a tool call may run. It blocks until the
// user answers.
type Confirmer interface {
	Confirm(description string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(description string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(description string) bool { return f(description) }

// Sink receives every event of an exchange in order, plus the
// PauseRendering/ResumeRendering pair around each confirmation and a
// ToolCallResult per resolved call.
type Sink interface {
	Handle(ev stream.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev stream.Event)

// Handle calls f.
func (f SinkFunc) Handle(ev stream.Event) { f(ev) }

// =============================================================================
// ERRORS
// =============================================================================

const (
	// CancelledResult replaces the output of a tool call the user denied.
	CancelledResult = "Cancelled by user"
	// ToolErrorResult replaces the output of a tool call that failed.
	ToolErrorResult = "Error calling tool"
)

var (
	// ErrTooManyTurns is returned when the model keeps requesting tools past
	// the configured limit.
	ErrTooManyTurns = errors.New("too many tool-calling turns")
	// ErrNoTransport is returned when Send is called without a transport.
	ErrNoTransport = errors.New("no transport configured")
)

// TurnError is a failed turn. The exchange it belonged to was not committed.
type TurnError struct {
	Turn int
	Err  error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %d failed: %v", e.Turn, e.Err)
}

// Unwrap returns the underlying error.
func (e *TurnError) Unwrap() error {
	return e.Err
}

// =============================================================================
// LOOP
// =============================================================================

// Phase is where the loop currently is within an exchange.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseAwaitingConfirmation
	PhaseToolExecuting
	PhaseFinalized
)

var phaseNames = [...]string{"idle", "sending", "streaming", "awaiting_confirmation", "tool_executing", "finalized"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// DefaultMaxTurns bounds consecutive tool-calling turns per exchange.
const DefaultMaxTurns = 20

// Option configures a Loop.
type Option func(*Loop)

// WithTools offers specs to the model and runs calls through exec.
func WithTools(exec ToolExecutor, specs []ToolSpec) Option {
	return func(l *Loop) {
		l.executor = exec
		l.tools = specs
	}
}

// WithConfirmer sets the tool-call confirmation prompt.
func WithConfirmer(c Confirmer) Option {
	return func(l *Loop) { l.confirmer = c }
}

// WithSink sets the event consumer.
func WithSink(s Sink) Option {
	return func(l *Loop) { l.sink = s }
}

// WithMaxTurns sets the tool-calling turn limit.
func WithMaxTurns(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxTurns = n
		}
	}
}

// WithHistory continues an existing conversation.
func WithHistory(c *Conversation) Option {
	return func(l *Loop) { l.history = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop drives exchanges for one chat session.
type Loop struct {
	transport Transport
	executor  ToolExecutor
	tools     []ToolSpec
	confirmer Confirmer
	sink      Sink
	history   *Conversation
	maxTurns  int
	logger    *zap.Logger

	sessionID string
	turn      int
	phase     Phase
}

// NewLoop creates a Loop sending through transport. Without a confirmer every
// tool call is denied.
func NewLoop(transport Transport, opts ...Option) *Loop {
	l := &Loop{
		transport: transport,
		confirmer: ConfirmFunc(func(string) bool { return false }),
		sink:      SinkFunc(func(stream.Event) {}),
		history:   NewConversation(),
		maxTurns:  DefaultMaxTurns,
		logger:    zap.NewNop(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("session", l.sessionID))
	return l
}

// History returns the conversation the loop appends to.
func (l *Loop) History() *Conversation { return l.history }

// SessionID identifies this loop in logs.
func (l *Loop) SessionID() string { return l.sessionID }

// Phase returns the current phase.
func (l *Loop) Phase() Phase { return l.phase }

// SetTransport replaces the transport used from the next turn on, e.g. after
// the user switched model.
func (l *Loop) SetTransport(t Transport) { l.transport = t }

// Send runs one exchange: the prompt, any number of tool-calling turns, and
// the final answer. The final text is returned and committed to history
// together with the prompt and every intermediate turn. On failure nothing
// is committed and the error is a *TurnError. Either way the exchange ends
// in PhaseFinalized.
func (l *Loop) Send(ctx context.Context, prompt string) (string, error) {
	if l.transport == nil {
		return "", ErrNoTransport
	}
	defer func() { l.phase = PhaseFinalized }()

	pending := []Message{UserMessage(prompt)}

	for turns := 1; ; turns++ {
		if turns > l.maxTurns {
			l.fail(ErrTooManyTurns.Error())
			return "", &TurnError{Turn: l.turn, Err: ErrTooManyTurns}
		}

		outcome, err := l.runTurn(ctx, pending)
		if err != nil {
			return "", err
		}

		if len(outcome.calls) == 0 {
			pending = append(pending, AssistantMessage(outcome.text))
			l.history.Append(pending...)
			return outcome.text, nil
		}

		pending = append(pending, AssistantMessage("", outcome.calls...))
		for _, result := range l.resolveCalls(ctx, outcome.calls) {
			pending = append(pending, ToolResultMessage(result))
		}
	}
}

// turnOutcome holds either final text (no calls) or a set of tool calls.
// Text streamed alongside calls is shown but not committed.
type turnOutcome struct {
	text  string
	calls []stream.ToolCall
}

func (l *Loop) runTurn(ctx context.Context, pending []Message) (turnOutcome, error) {
	l.turn++
	turn := l.turn
	start := time.Now()

	l.phase = PhaseSending
	req := Request{
		Messages: append(l.history.Messages(), pending...),
		Tools:    l.tools,
		IDPrefix: fmt.Sprintf("call_%d_", turn),
	}
	l.logger.Debug("turn start", zap.Int("turn", turn), zap.Int("messages", len(req.Messages)))

	s, err := l.transport.Open(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			l.fail(err.Error())
		}
		l.logger.Warn("turn open failed", zap.Int("turn", turn), zap.Error(err))
		return turnOutcome{}, &TurnError{Turn: turn, Err: err}
	}
	defer s.Close()

	l.phase = PhaseStreaming
	var (
		text   strings.Builder
		calls  []stream.ToolCall
		errMsg []string
		fatal  []string
	)
	for s.Next() {
		ev := s.Current()
		switch ev.Kind {
		case stream.EventText:
			text.WriteString(ev.Text)
		case stream.EventToolCallRequest:
			calls = append(calls, ev.Call)
		case stream.EventError:
			errMsg = append(errMsg, ev.Text)
			if ev.Fatal {
				fatal = append(fatal, ev.Text)
			}
			if ctx.Err() != nil {
				continue
			}
		}
		l.sink.Handle(ev)
	}

	if err := s.Err(); err != nil {
		l.logger.Warn("turn stream failed", zap.Int("turn", turn), zap.Error(err))
		return turnOutcome{}, &TurnError{Turn: turn, Err: err}
	}
	// Decode failures are best effort; a provider error frame fails the turn.
	if len(fatal) > 0 {
		l.logger.Warn("turn rejected by provider", zap.Int("turn", turn), zap.Strings("errors", fatal))
		return turnOutcome{}, &TurnError{Turn: turn, Err: errors.New(strings.TrimSpace(strings.Join(fatal, "\n")))}
	}
	if len(errMsg) > 0 && text.Len() == 0 && len(calls) == 0 {
		return turnOutcome{}, &TurnError{Turn: turn, Err: errors.New(strings.TrimSpace(strings.Join(errMsg, "\n")))}
	}

	l.logger.Info("turn finished",
		zap.Int("turn", turn),
		zap.Int("chars", text.Len()),
		zap.Int("tool_calls", len(calls)),
		zap.Duration("duration", time.Since(start)))
	return turnOutcome{text: text.String(), calls: calls}, nil
}

// resolveCalls confirms and runs each call in order. Confirmation is an
// interactive prompt, so calls are never resolved concurrently.
func (l *Loop) resolveCalls(ctx context.Context, calls []stream.ToolCall) []stream.ToolResult {
	results := make([]stream.ToolResult, 0, len(calls))
	for _, call := range calls {
		l.phase = PhaseAwaitingConfirmation
		l.sink.Handle(stream.PauseEvent())
		approved := l.confirmer.Confirm(Describe(call))
		l.sink.Handle(stream.ResumeEvent())

		result := stream.ToolResult{ID: call.ID, Name: call.Name}
		switch {
		case !approved:
			result.Output = CancelledResult
		case l.executor == nil:
			result.Output = ToolErrorResult
		default:
			l.phase = PhaseToolExecuting
			out, err := l.executor.Call(ctx, call.Name, call.Arguments)
			if err != nil {
				l.logger.Warn("tool call failed", zap.String("tool", call.Name), zap.Error(err))
				out = ToolErrorResult
			}
			result.Output = out
		}

		l.logger.Info("tool call resolved", zap.String("tool", call.Name), zap.Bool("approved", approved))
		l.sink.Handle(stream.ToolResultEvent(result))
		results = append(results, result)
	}
	return results
}

// fail reports an error that did not come through a stream.
func (l *Loop) fail(msg string) {
	l.sink.Handle(stream.ErrorEvent(msg))
	l.sink.Handle(stream.DoneEvent())
}

// Describe is the confirmation question for a tool call.
func Describe(call stream.ToolCall) string {
	return fmt.Sprintf("Run tool '%s'?", call.Name)
}
