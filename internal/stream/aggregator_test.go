// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingBody records whether Close was called.
type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

func body(lines ...string) *trackingBody {
	return &trackingBody{Reader: strings.NewReader(strings.Join(lines, "\n") + "\n")}
}

// failingReader returns data and then a non-EOF error.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// =============================================================================
// TEXT
// =============================================================================

func TestAggregator_TextInOrderThenDone(t *testing.T) {
	b := body(
		"event: message_start",
		`data: {"type":"message_start","message":{"id":"m","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514"}}`,
		"",
		"event: content_block_start",
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		"",
		anthropicText("Hello"),
		anthropicText(" world"),
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_stop"}`,
	)

	events, err := Collect(New(b, Anthropic))
	require.NoError(t, err)
	assert.Equal(t, []Event{TextEvent("Hello"), TextEvent(" world"), DoneEvent()}, events)
	assert.True(t, b.closed.Load(), "body must be closed once the stream ends")
}

func TestAggregator_OpenAIDoneToken(t *testing.T) {
	b := body(openAIText("a"), "", openAIText("b"), "", "data: [DONE]", "")
	events, err := Collect(New(b, OpenAI))
	require.NoError(t, err)
	assert.Equal(t, []Event{TextEvent("a"), TextEvent("b"), DoneEvent()}, events)
}

func TestAggregator_DecodeErrorContinues(t *testing.T) {
	b := body(openAIText("before"), `data: {"broken`, openAIText("after"))
	events, err := Collect(New(b, OpenAI))
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, []EventKind{EventText, EventError, EventText, EventDone}, kinds(events))
	assert.Equal(t, "after", events[2].Text)
	assert.False(t, events[1].Fatal, "decode failures are best effort")
}

func TestAggregator_ProviderErrorFrameIsFatal(t *testing.T) {
	b := body(
		anthropicText("part"),
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
	)
	events, err := Collect(New(b, Anthropic))
	require.NoError(t, err)
	assert.Equal(t, []Event{TextEvent("part"), ProviderErrorEvent("**Error**: Overloaded"), DoneEvent()}, events)
}

// =============================================================================
// TOOL CALLS
// =============================================================================

func TestAggregator_AnthropicToolCallAssembledAtBlockStop(t *testing.T) {
	b := body(
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"fs-read","input":{}}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":""}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"pa"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"th\": \"/etc"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"/hosts\"}"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":5}}`,
		`data: {"type":"message_stop"}`,
	)

	agg := New(b, Anthropic)
	defer agg.Close()

	// Nothing is emitted before the terminal marker.
	require.True(t, agg.Next())
	first := agg.Current()
	require.Equal(t, EventToolCallRequest, first.Kind)
	assert.Equal(t, ToolCall{ID: "toolu_1", Name: "fs-read", Arguments: `{"path": "/etc/hosts"}`}, first.Call)

	require.True(t, agg.Next())
	assert.Equal(t, EventDone, agg.Current().Kind)
	assert.False(t, agg.Next())
	assert.NoError(t, agg.Err())
}

func TestAggregator_InterleavedOpenAIToolCalls(t *testing.T) {
	b := body(
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"fs-list","arguments":""}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"web-fetch","arguments":""}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"{\"url\":"}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"dir\":\"/\"}"}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"\"x\"}"}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		"data: [DONE]",
	)

	events, err := Collect(New(b, OpenAI))
	require.NoError(t, err)
	require.Equal(t, []EventKind{EventToolCallRequest, EventToolCallRequest, EventDone}, kinds(events))
	assert.Equal(t, ToolCall{ID: "call_a", Name: "fs-list", Arguments: `{"dir":"/"}`}, events[0].Call)
	assert.Equal(t, ToolCall{ID: "call_b", Name: "web-fetch", Arguments: `{"url":"x"}`}, events[1].Call)
}

func TestAggregator_SynthesizesMissingIDs(t *testing.T) {
	lines := func() []string {
		return []string{
			`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"name":"a","arguments":"{}"}}]},"finish_reason":null}]}`,
			`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"name":"b","arguments":""}}]},"finish_reason":null}]}`,
			`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		}
	}

	events, err := Collect(New(body(lines()...), OpenAI))
	require.NoError(t, err)
	assert.Equal(t, "call_1", events[0].Call.ID)
	assert.Equal(t, "call_2", events[1].Call.ID)
	assert.Equal(t, "{}", events[1].Call.Arguments, "empty arguments normalize to {}")

	events, err = Collect(New(body(lines()...), OpenAI, WithIDPrefix("call_7_")))
	require.NoError(t, err)
	assert.Equal(t, "call_7_1", events[0].Call.ID)
	assert.Equal(t, "call_7_2", events[1].Call.ID)
}

func TestAggregator_UnfinishedToolCallIsError(t *testing.T) {
	b := body(
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_9","name":"fs-read","input":{}}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"pa"}}`,
	)
	events, err := Collect(New(b, Anthropic))
	require.NoError(t, err)
	require.Equal(t, []EventKind{EventError, EventDone}, kinds(events))
	assert.Contains(t, events[0].Text, "toolu_9")
}

// =============================================================================
// TRANSPORT FAILURES
// =============================================================================

func TestAggregator_TransportErrorThenDone(t *testing.T) {
	readErr := errors.New("connection reset by peer")
	r := &failingReader{data: []byte(openAIText("partial") + "\n"), err: readErr}
	b := &trackingBody{Reader: r}

	agg := New(b, OpenAI)
	events, err := Collect(agg)

	require.Equal(t, []EventKind{EventText, EventError, EventDone}, kinds(events))
	assert.Contains(t, events[1].Text, "connection reset by peer")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "partial", te.Partial)
	assert.ErrorIs(t, err, readErr)
	assert.True(t, b.closed.Load())
}

// blockingBody blocks reads until closed.
type blockingBody struct {
	closed chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.closed
	return 0, errors.New("read on closed body")
}

func (b *blockingBody) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func TestAggregator_ContextCancelClosesBody(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &blockingBody{closed: make(chan struct{})}
	agg := New(b, OpenAI, WithContext(ctx))

	done := make(chan []Event, 1)
	go func() {
		events, _ := Collect(agg)
		done <- events
	}()

	cancel()
	select {
	case events := <-done:
		require.Equal(t, []EventKind{EventError, EventDone}, kinds(events))
		assert.ErrorIs(t, agg.Err(), context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not unblock after cancellation")
	}
}

func TestAggregator_CloseIsIdempotent(t *testing.T) {
	b := body(openAIText("x"))
	agg := New(b, OpenAI)
	assert.NoError(t, agg.Close())
	assert.NoError(t, agg.Close())
	assert.True(t, b.closed.Load())
}

// =============================================================================
// REPLAY / BATCH
// =============================================================================

func TestReplay_AppendsDone(t *testing.T) {
	events, err := Collect(NewReplay([]Event{TextEvent("x")}))
	require.NoError(t, err)
	assert.Equal(t, []Event{TextEvent("x"), DoneEvent()}, events)
}

func TestDecodeCompletion(t *testing.T) {
	t.Run("openai text", func(t *testing.T) {
		events, err := DecodeCompletion([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}]}`), OpenAI, "")
		require.NoError(t, err)
		assert.Equal(t, []Event{TextEvent("Hi there"), DoneEvent()}, events)
	})

	t.Run("openai tool calls", func(t *testing.T) {
		events, err := DecodeCompletion([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_x","type":"function","function":{"name":"fs-list","arguments":"{\"dir\":\"/\"}"}},{"type":"function","function":{"name":"fs-read","arguments":""}}]},"finish_reason":"tool_calls"}]}`), OpenAI, "call_3_")
		require.NoError(t, err)
		require.Equal(t, []EventKind{EventToolCallRequest, EventToolCallRequest, EventDone}, kinds(events))
		assert.Equal(t, ToolCall{ID: "call_x", Name: "fs-list", Arguments: `{"dir":"/"}`}, events[0].Call)
		assert.Equal(t, ToolCall{ID: "call_3_1", Name: "fs-read", Arguments: "{}"}, events[1].Call)
	})

	t.Run("anthropic mixed content", func(t *testing.T) {
		events, err := DecodeCompletion([]byte(`{"id":"msg","type":"message","role":"assistant","content":[{"type":"text","text":"Checking."},{"type":"tool_use","id":"toolu_1","name":"fs-read","input":{"path":"/tmp"}}],"stop_reason":"tool_use"}`), Anthropic, "")
		require.NoError(t, err)
		require.Equal(t, []EventKind{EventText, EventToolCallRequest, EventDone}, kinds(events))
		assert.Equal(t, `{"path":"/tmp"}`, events[1].Call.Arguments)
	})

	t.Run("error body", func(t *testing.T) {
		events, err := DecodeCompletion([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`), Anthropic, "")
		require.NoError(t, err)
		assert.Equal(t, []Event{ProviderErrorEvent("**Error**: bad model"), DoneEvent()}, events)
	})

	t.Run("invalid body", func(t *testing.T) {
		_, err := DecodeCompletion([]byte(`<html>`), OpenAI, "")
		assert.Error(t, err)
	})
}
