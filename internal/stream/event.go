// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"strings"
)

// =============================================================================
// PROVIDERS
// =============================================================================

// ProviderKind identifies the wire format a response is encoded in.
type ProviderKind int

const (
	// OpenAI is the chat-completions format (choices[].delta).
	OpenAI ProviderKind = iota
	// Anthropic is the messages format (content_block_* framing).
	Anthropic
)

// String returns the config name of the provider.
func (k ProviderKind) String() string {
	switch k {
	case OpenAI:
		return "openai"
	case Anthropic:
		return "anthropic"
	default:
		return fmt.Sprintf("provider(%d)", int(k))
	}
}

// DisplayName returns the human readable provider name.
func (k ProviderKind) DisplayName() string {
	switch k {
	case OpenAI:
		return "OpenAI"
	case Anthropic:
		return "Anthropic"
	default:
		return k.String()
	}
}

// ParseProviderKind parses a provider name as written in config files.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return OpenAI, nil
	case "anthropic", "claude":
		return Anthropic, nil
	default:
		return 0, fmt.Errorf("unknown provider %q", s)
	}
}

// Providers lists every supported provider in menu order.
func Providers() []ProviderKind {
	return []ProviderKind{OpenAI, Anthropic}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventText EventKind = iota
	EventToolCallRequest
	EventToolCallResult
	EventPauseRendering
	EventResumeRendering
	EventError
	EventDone
)

var eventKindNames = map[EventKind]string{
	EventText:            "Text",
	EventToolCallRequest: "ToolCallRequest",
	EventToolCallResult:  "ToolCallResult",
	EventPauseRendering:  "PauseRendering",
	EventResumeRendering: "ResumeRendering",
	EventError:           "Error",
	EventDone:            "Done",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ToolCall is a fully assembled tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// ToolResult is the output fed back to the model for one ToolCall.
type ToolResult struct {
	ID     string
	Name   string
	Output string
}

// Event is one item of the unified stream vocabulary. Only the fields that
// belong to Kind are set; events are plain values and never mutated.
type Event struct {
	Kind EventKind

	// Text holds the delta for EventText and the message for EventError.
	Text string

	// Fatal marks an EventError the provider sent itself. Such a turn has
	// failed even if text was streamed before it.
	Fatal bool

	// Call is set for EventToolCallRequest.
	Call ToolCall

	// Result is set for EventToolCallResult.
	Result ToolResult
}

// TextEvent returns a Text(delta) event.
func TextEvent(delta string) Event { return Event{Kind: EventText, Text: delta} }

// ToolCallEvent returns a ToolCallRequest event.
func ToolCallEvent(call ToolCall) Event { return Event{Kind: EventToolCallRequest, Call: call} }

// ToolResultEvent returns a ToolCallResult event.
func ToolResultEvent(result ToolResult) Event {
	return Event{Kind: EventToolCallResult, Result: result}
}

// PauseEvent returns a PauseRendering event.
func PauseEvent() Event { return Event{Kind: EventPauseRendering} }

// ResumeEvent returns a ResumeRendering event.
func ResumeEvent() Event { return Event{Kind: EventResumeRendering} }

// ErrorEvent returns an Error(message) event.
func ErrorEvent(message string) Event { return Event{Kind: EventError, Text: message} }

// ProviderErrorEvent returns a fatal Error(message) event.
func ProviderErrorEvent(message string) Event {
	return Event{Kind: EventError, Text: message, Fatal: true}
}

// DoneEvent returns the terminal Done event.
func DoneEvent() Event { return Event{Kind: EventDone} }

// String renders the event for logs and test failure output.
func (e Event) String() string {
	switch e.Kind {
	case EventText, EventError:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Text)
	case EventToolCallRequest:
		return fmt.Sprintf("%s{id=%s name=%s args=%s}", e.Kind, e.Call.ID, e.Call.Name, e.Call.Arguments)
	case EventToolCallResult:
		return fmt.Sprintf("%s{id=%s output=%q}", e.Kind, e.Result.ID, e.Result.Output)
	default:
		return e.Kind.String()
	}
}

// =============================================================================
// STREAM INTERFACE
// =============================================================================

// Stream is a lazy, forward-only sequence of Events.
//
// Next advances to the next event and reports whether one is available.
// Current returns the event Next advanced to. Err reports the transport
// failure that ended the stream, if any. Close releases the underlying
// connection and is safe to call more than once.
type Stream interface {
	Next() bool
	Current() Event
	Err() error
	Close() error
}

// Collect drains s and returns every event it produced. It closes s.
func Collect(s Stream) ([]Event, error) {
	defer s.Close()
	var events []Event
	for s.Next() {
		events = append(events, s.Current())
	}
	return events, s.Err()
}
