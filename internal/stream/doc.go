// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns provider responses into a single event vocabulary.
//
// Raw Server-Sent-Events lines from OpenAI or Anthropic are decoded one at a
// time by Parse into provider-neutral deltas. An Aggregator drives the parser
// over an HTTP response body, assembles tool-call argument fragments and yields
// Events in the exact order the chunks arrived.
//
// # Key Types
//
//   - Event: Text, ToolCallRequest, ToolCallResult, PauseRendering,
//     ResumeRendering, Error and Done
//   - Delta: one decoded chunk, before tool-call assembly
//   - Aggregator: lazy, single-pass Stream over one response body
//   - Replay: Stream over events decoded from a non-streaming response
//
// # Usage
//
//	agg := stream.New(resp.Body, stream.Anthropic)
//	defer agg.Close()
//	for agg.Next() {
//	    ev := agg.Current()
//	    ...
//	}
//	if err := agg.Err(); err != nil { ... }
package stream
