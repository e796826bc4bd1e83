// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// =============================================================================
// NON-STREAMING RESPONSES
// =============================================================================

// DecodeCompletion converts a complete (non-streamed) response body into the
// same events a stream would have produced: Text, then ToolCallRequests, then
// Done. Tool calls without an id get prefix + counter.
func DecodeCompletion(body []byte, kind ProviderKind, idPrefix string) ([]Event, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid completion body: %s", truncate(string(body), 200))
	}
	if msg, ok := providerError(string(body)); ok {
		return []Event{ProviderErrorEvent("**Error**: " + msg), DoneEvent()}, nil
	}
	if idPrefix == "" {
		idPrefix = "call_"
	}

	var events []Event
	seq := 0
	nextID := func(id string) string {
		if id != "" {
			return id
		}
		seq++
		return fmt.Sprintf("%s%d", idPrefix, seq)
	}

	switch kind {
	case Anthropic:
		var calls []Event
		gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
			switch block.Get("type").String() {
			case "text":
				if text := block.Get("text").String(); text != "" {
					events = append(events, TextEvent(text))
				}
			case "tool_use":
				args := block.Get("input").Raw
				if args == "" || args == "null" {
					args = "{}"
				}
				calls = append(calls, ToolCallEvent(ToolCall{
					ID:        nextID(block.Get("id").String()),
					Name:      block.Get("name").String(),
					Arguments: args,
				}))
			}
			return true
		})
		events = append(events, calls...)
	default:
		message := gjson.GetBytes(body, "choices.0.message")
		if !message.Exists() {
			return nil, fmt.Errorf("completion has no choices: %s", truncate(string(body), 200))
		}
		if text := message.Get("content").String(); text != "" {
			events = append(events, TextEvent(text))
		}
		message.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			args := tc.Get("function.arguments").String()
			if args == "" {
				args = "{}"
			}
			events = append(events, ToolCallEvent(ToolCall{
				ID:        nextID(tc.Get("id").String()),
				Name:      tc.Get("function.name").String(),
				Arguments: args,
			}))
			return true
		})
	}

	return append(events, DoneEvent()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
