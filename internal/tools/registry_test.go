// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeSession is a Session test double.
type fakeSession struct {
	tools   []*mcp.Tool
	listErr error
	call    func(*mcp.CallToolParams) (*mcp.CallToolResult, error)
	closed  bool
}

func (f *fakeSession) Tools(context.Context, *mcp.ListToolsParams) iter.Seq2[*mcp.Tool, error] {
	return func(yield func(*mcp.Tool, error) bool) {
		if f.listErr != nil {
			yield(nil, f.listErr)
			return
		}
		for _, t := range f.tools {
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (f *fakeSession) CallTool(_ context.Context, p *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	return f.call(p)
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func TestRegistry_NamesAndRouting(t *testing.T) {
	var got *mcp.CallToolParams
	fs := &fakeSession{
		tools: []*mcp.Tool{{Name: "read-file", Description: "Read a file", InputSchema: map[string]any{"type": "object"}}},
		call: func(p *mcp.CallToolParams) (*mcp.CallToolResult, error) {
			got = p
			return text("contents"), nil
		},
	}
	r := NewRegistry("test")
	require.NoError(t, r.Add(context.Background(), "fs", fs))

	specs := r.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "fs-read-file", specs[0].Name)
	assert.Equal(t, "object", gjson.GetBytes(specs[0].Parameters, "type").String())

	out, err := r.Call(context.Background(), "fs-read-file", `{"path":"/tmp/x"}`)
	require.NoError(t, err)
	assert.Equal(t, "contents", out)
	assert.Equal(t, "read-file", got.Name, "split on the first separator only")
	assert.Equal(t, map[string]any{"path": "/tmp/x"}, got.Arguments)
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry("test")
	_, err := r.Call(context.Background(), "nope-tool", "{}")
	assert.ErrorIs(t, err, ErrUnknownTool)
	_, err = r.Call(context.Background(), "noseparator", "{}")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_ToolErrorResult(t *testing.T) {
	r := NewRegistry("test")
	require.NoError(t, r.Add(context.Background(), "git", &fakeSession{
		call: func(*mcp.CallToolParams) (*mcp.CallToolResult, error) {
			res := text("not a repository")
			res.IsError = true
			return res, nil
		},
	}))

	_, err := r.Call(context.Background(), "git-status", "")
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "not a repository")
}

func TestRegistry_InvalidArguments(t *testing.T) {
	r := NewRegistry("test")
	require.NoError(t, r.Add(context.Background(), "git", &fakeSession{}))
	_, err := r.Call(context.Background(), "git-status", "{broken")
	assert.Error(t, err)
}

func TestRegistry_ConnectSkipsFailingServers(t *testing.T) {
	good := &fakeSession{tools: []*mcp.Tool{{Name: "ping"}}}
	broken := &fakeSession{listErr: errors.New("boom")}
	r := NewRegistry("test", WithDialer(func(_ context.Context, cfg ServerConfig) (Session, error) {
		switch cfg.Name {
		case "good":
			return good, nil
		case "broken":
			return broken, nil
		default:
			return nil, errors.New("exec: not found")
		}
	}))

	r.Connect(context.Background(), []ServerConfig{{Name: "good"}, {Name: "broken"}, {Name: "missing"}, {Name: "bad-name"}})

	assert.Equal(t, 1, r.Len())
	assert.True(t, broken.closed, "session closed when listing fails")
	require.Len(t, r.Specs(), 1)
	assert.Equal(t, "good-ping", r.Specs()[0].Name)

	require.NoError(t, r.Close())
	assert.True(t, good.closed)
	assert.Empty(t, r.Specs())
}

type echoInput struct {
	Message string `json:"message" jsonschema:"text to echo"`
}

func TestRegistry_InMemoryServer(t *testing.T) {
	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "echo", Version: "v1"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "say", Description: "Echo a message"},
		func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, any, error) {
			return text("echo: " + in.Message), nil, nil
		})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	r := NewRegistry("test")
	require.NoError(t, r.Add(ctx, "echo", session))
	defer r.Close()

	specs := r.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "echo-say", specs[0].Name)
	assert.True(t, gjson.GetBytes(specs[0].Parameters, "properties.message").Exists())

	out, err := r.Call(ctx, "echo-say", `{"message":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}
