// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent runs the multi-turn tool-calling conversation.
//
// A Loop sends the conversation to a Transport, routes streamed events to a
// Sink, asks a Confirmer before every tool call, runs approved calls through a
// ToolExecutor and feeds the results back in a new request, until the model
// answers with plain text. Only completed exchanges are committed to the
// Conversation; a failed turn leaves the history as it was.
package agent

import (
	"encoding/json"
	"sync"

	"github.com/jeranaias/termai/internal/stream"
)

// =============================================================================
// MESSAGES
// =============================================================================

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []stream.ToolCall

	// ToolCallID and ToolName are set on tool result messages.
	ToolCallID string
	ToolName   string
}

// UserMessage returns a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant message, optionally with tool calls.
func AssistantMessage(content string, calls ...stream.ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage returns the message carrying one tool's output.
func ToolResultMessage(result stream.ToolResult) Message {
	return Message{Role: RoleTool, Content: result.Output, ToolCallID: result.ID, ToolName: result.Name}
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema object
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the in-memory history of a chat session. Messages are only
// ever appended; Clear starts over.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Append adds messages at the end of the history.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Clear removes every message.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// LastReply returns the content of the last assistant message without tool
// calls, or "" if there is none.
func (c *Conversation) LastReply() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == RoleAssistant && len(m.ToolCalls) == 0 {
			return m.Content
		}
	}
	return ""
}
