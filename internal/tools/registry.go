// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the tools of configured MCP servers to the model.
//
// Every server is spawned as a subprocess speaking MCP over stdio. Its tools
// are offered to the model as "<server>-<tool>" and calls are routed back to
// the owning server by splitting on the first '-'.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/jeranaias/termai/internal/agent"
)

var (
	// ErrUnknownTool is returned for a tool name no server provides.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolFailed wraps the text of a tool result flagged as an error.
	ErrToolFailed = errors.New("tool reported an error")
)

// NameSeparator joins server and tool names.
const NameSeparator = "-"

// ClientName identifies this program to MCP servers.
const ClientName = "termai"

// ServerConfig describes one MCP server to spawn.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// Session is a connected MCP server.
type Session interface {
	Tools(ctx context.Context, params *mcp.ListToolsParams) iter.Seq2[*mcp.Tool, error]
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer connects to a server.
type Dialer func(ctx context.Context, cfg ServerConfig) (Session, error)

// =============================================================================
// REGISTRY
// =============================================================================

// Option configures a Registry.
type Option func(*Registry)

// WithDialer replaces the stdio dialer.
func WithDialer(d Dialer) Option {
	return func(r *Registry) { r.dial = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// Registry is the set of connected servers and their tools. It implements
// agent.ToolExecutor.
type Registry struct {
	dial   Dialer
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]Session
	specs    []agent.ToolSpec
}

var _ agent.ToolExecutor = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(version string, opts ...Option) *Registry {
	r := &Registry{
		logger:   zap.NewNop(),
		sessions: make(map[string]Session),
	}
	r.dial = StdioDialer(version)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect spawns every server. A server that fails to start or to list its
// tools is logged and skipped; the others stay usable.
func (r *Registry) Connect(ctx context.Context, servers []ServerConfig) {
	for _, cfg := range servers {
		if err := r.connect(ctx, cfg); err != nil {
			r.logger.Warn("mcp server unavailable", zap.String("server", cfg.Name), zap.Error(err))
		}
	}
}

func (r *Registry) connect(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" || strings.Contains(cfg.Name, NameSeparator) {
		return fmt.Errorf("invalid server name %q", cfg.Name)
	}
	session, err := r.dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := r.Add(ctx, cfg.Name, session); err != nil {
		_ = session.Close()
		return err
	}
	return nil
}

// Add registers a connected session under name and lists its tools.
func (r *Registry) Add(ctx context.Context, name string, session Session) error {
	var specs []agent.ToolSpec
	for tool, err := range session.Tools(ctx, &mcp.ListToolsParams{}) {
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		specs = append(specs, agent.ToolSpec{
			Name:        name + NameSeparator + tool.Name,
			Description: tool.Description,
			Parameters:  schemaJSON(tool.InputSchema),
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[name]; ok {
		_ = old.Close()
		r.specs = dropServer(r.specs, name)
	}
	r.sessions[name] = session
	r.specs = append(r.specs, specs...)
	sort.Slice(r.specs, func(i, j int) bool { return r.specs[i].Name < r.specs[j].Name })

	r.logger.Info("mcp server connected", zap.String("server", name), zap.Int("tools", len(specs)))
	return nil
}

// Specs returns the tools offered to the model, sorted by name.
func (r *Registry) Specs() []agent.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]agent.ToolSpec(nil), r.specs...)
}

// Len returns the number of connected servers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Call runs the tool named "<server>-<tool>" with JSON arguments and returns
// its text output.
func (r *Registry) Call(ctx context.Context, name, arguments string) (string, error) {
	server, tool, ok := strings.Cut(name, NameSeparator)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	r.mu.RLock()
	session, ok := r.sessions[server]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args := map[string]any{}
	if strings.TrimSpace(arguments) != "" {
		if !gjson.Valid(arguments) {
			return "", fmt.Errorf("invalid arguments for %s: %s", name, arguments)
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("decode arguments for %s: %w", name, err)
		}
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}

	out := textOf(res)
	if res.IsError {
		return "", fmt.Errorf("%w: %s", ErrToolFailed, out)
	}
	r.logger.Debug("tool output", zap.String("tool", name), zap.Int("bytes", len(out)))
	return out, nil
}

// Close shuts every server down.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, s := range r.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		r.logger.Info("mcp server closed", zap.String("server", name))
	}
	r.sessions = make(map[string]Session)
	r.specs = nil
	return errors.Join(errs...)
}

// =============================================================================
// STDIO
// =============================================================================

// StdioDialer spawns the server command and speaks MCP over its stdio.
func StdioDialer(version string) Dialer {
	return func(ctx context.Context, cfg ServerConfig) (Session, error) {
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Env = append(os.Environ(), cfg.Env...)

		client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: version}, nil)
		session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func schemaJSON(schema any) json.RawMessage {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil || string(data) == "null" {
		return nil
	}
	return data
}

func textOf(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "no output"
	}
	return strings.Join(parts, "\n")
}

func dropServer(specs []agent.ToolSpec, server string) []agent.ToolSpec {
	prefix := server + NameSeparator
	out := specs[:0]
	for _, s := range specs {
		if !strings.HasPrefix(s.Name, prefix) {
			out = append(out, s)
		}
	}
	return out
}
