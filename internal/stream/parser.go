// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"github.com/tidwall/gjson"
)

// =============================================================================
// CHUNK PARSER
// =============================================================================

// DoneToken is the literal payload OpenAI sends after the last chunk.
const DoneToken = "[DONE]"

// DeltaKind tags what a single decoded chunk carries.
type DeltaKind int

const (
	// DeltaText carries a text fragment.
	DeltaText DeltaKind = iota
	// DeltaTool carries one or more tool-call fragments.
	DeltaTool
	// DeltaBlockStop closes the content block at Index.
	DeltaBlockStop
	// DeltaFinish marks the end of the turn (finish_reason / message_stop).
	DeltaFinish
	// DeltaError carries a provider error or a decode failure.
	DeltaError
)

// ToolFragment is a piece of a tool call. The first fragment of a call
// usually carries ID and Name, later fragments only Arguments.
type ToolFragment struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Delta is the semantic content of one raw SSE line.
type Delta struct {
	Kind      DeltaKind
	Text      string         // DeltaText, DeltaError
	Fragments []ToolFragment // DeltaTool
	Index     int            // DeltaBlockStop
	Reason    string         // finish reason, may accompany any kind
	Fatal     bool           // DeltaError sent by the provider, not a decode failure
}

// Event converts a text or error delta to its public event. Tool deltas have
// no public form until assembled, so ok is false for them.
func (d Delta) Event() (Event, bool) {
	switch d.Kind {
	case DeltaText:
		return TextEvent(d.Text), true
	case DeltaError:
		if d.Fatal {
			return ProviderErrorEvent(d.Text), true
		}
		return ErrorEvent(d.Text), true
	default:
		return Event{}, false
	}
}

// Parse decodes one SSE line for the given provider.
//
// The line may still carry its "data:" prefix. Empty lines, the [DONE]
// terminator, event:/comment framing lines and keep-alive frames return
// ok=false. Malformed JSON is reported as a DeltaError embedding the parse
// failure and the offending line; it never aborts the stream.
func Parse(line string, kind ProviderKind) (Delta, bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "data:") {
		line = strings.TrimSpace(line[len("data:"):])
	}
	if line == "" || line == DoneToken || strings.HasPrefix(line, "event:") || strings.HasPrefix(line, ":") {
		return Delta{}, false
	}

	if !gjson.Valid(line) {
		return decodeFailure(line, jsonSyntaxError(line)), true
	}

	if msg, ok := providerError(line); ok {
		return Delta{Kind: DeltaError, Text: "**Error**: " + msg, Fatal: true}, true
	}

	switch kind {
	case Anthropic:
		return parseAnthropic(line)
	default:
		return parseOpenAI(line)
	}
}

// jsonSyntaxError returns the standard decoder's description of why line is not
// valid JSON.
func jsonSyntaxError(line string) error {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return err
	}
	return fmt.Errorf("invalid JSON")
}

func decodeFailure(line string, err error) Delta {
	return Delta{Kind: DeltaError, Text: fmt.Sprintf("\n\nError: %v\nLine: %s", err, line)}
}

// providerError detects in-band error frames. Anthropic sends
// {"type":"error","error":{...}}, OpenAI-compatible servers {"error":{...}}.
func providerError(line string) (string, bool) {
	errField := gjson.Get(line, "error")
	if !errField.Exists() {
		return "", false
	}
	if t := gjson.Get(line, "type"); t.Exists() && t.String() != "error" {
		return "", false
	}
	if msg := errField.Get("message"); msg.Exists() {
		return msg.String(), true
	}
	return errField.String(), true
}

// =============================================================================
// OPENAI
// =============================================================================

func parseOpenAI(line string) (Delta, bool) {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(line), &chunk); err != nil {
		return decodeFailure(line, err), true
	}
	if len(chunk.Choices) == 0 {
		return Delta{}, false
	}

	choice := chunk.Choices[0]
	reason := string(choice.FinishReason)

	if len(choice.Delta.ToolCalls) > 0 {
		d := Delta{Kind: DeltaTool, Reason: reason}
		for _, tc := range choice.Delta.ToolCalls {
			d.Fragments = append(d.Fragments, ToolFragment{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return d, true
	}

	if choice.Delta.Content != "" {
		return Delta{Kind: DeltaText, Text: choice.Delta.Content, Reason: reason}, true
	}

	if reason != "" {
		return Delta{Kind: DeltaFinish, Reason: reason}, true
	}
	return Delta{}, false
}

// =============================================================================
// ANTHROPIC
// =============================================================================

func parseAnthropic(line string) (Delta, bool) {
	var event anthropic.MessageStreamEventUnion
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return decodeFailure(line, err), true
	}

	switch ev := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		switch block := ev.ContentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			if block.Text == "" {
				return Delta{}, false
			}
			return Delta{Kind: DeltaText, Text: block.Text}, true
		case anthropic.ToolUseBlock:
			return Delta{Kind: DeltaTool, Fragments: []ToolFragment{{
				Index: int(ev.Index),
				ID:    block.ID,
				Name:  block.Name,
			}}}, true
		}
	case anthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return Delta{Kind: DeltaText, Text: delta.Text}, true
		case anthropic.InputJSONDelta:
			return Delta{Kind: DeltaTool, Fragments: []ToolFragment{{
				Index:     int(ev.Index),
				Arguments: delta.PartialJSON,
			}}}, true
		}
	case anthropic.ContentBlockStopEvent:
		return Delta{Kind: DeltaBlockStop, Index: int(ev.Index)}, true
	case anthropic.MessageDeltaEvent:
		if reason := string(ev.Delta.StopReason); reason != "" {
			return Delta{Kind: DeltaFinish, Reason: reason}, true
		}
	case anthropic.MessageStopEvent:
		return Delta{Kind: DeltaFinish, Reason: "message_stop"}, true
	}

	// message_start, ping, thinking blocks
	return Delta{}, false
}
