// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/termai/internal/agent"
	"github.com/jeranaias/termai/internal/stream"
)

// emptySchema is used for tools that declare no parameters.
var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

func schemaOf(spec agent.ToolSpec) json.RawMessage {
	if len(spec.Parameters) == 0 || !gjson.ValidBytes(spec.Parameters) {
		return emptySchema
	}
	return spec.Parameters
}

// =============================================================================
// OPENAI
// =============================================================================

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []openAITool    `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string            `json:"type"`
	Function openAIFunctionDef `json:"function"`
}

type openAIFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

func buildOpenAI(model, preamble string, req agent.Request, streaming bool) openAIRequest {
	out := openAIRequest{Model: model, Stream: streaming}
	if preamble != "" {
		out.Messages = append(out.Messages, openAIMessage{Role: "system", Content: preamble})
	}
	for _, m := range req.Messages {
		msg := openAIMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openAIToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: openAIFunction{Name: call.Name, Arguments: call.Arguments},
			})
		}
		out.Messages = append(out.Messages, msg)
	}
	if !IsSearchModel(model) {
		for _, spec := range req.Tools {
			out.Tools = append(out.Tools, openAITool{
				Type:     "function",
				Function: openAIFunctionDef{Name: spec.Name, Description: spec.Description, Parameters: schemaOf(spec)},
			})
		}
	}
	return out
}

// =============================================================================
// ANTHROPIC
// =============================================================================

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// buildAnthropic maps the history onto Anthropic's content blocks. Tool
// results travel as tool_result blocks in a user message, and consecutive
// messages of the same role are merged since the API requires alternation.
func buildAnthropic(model, preamble string, req agent.Request, streaming bool) anthropicRequest {
	out := anthropicRequest{
		Model:     model,
		MaxTokens: MaxTokens(model),
		System:    preamble,
		Stream:    streaming,
	}

	for _, m := range req.Messages {
		role := "user"
		var blocks []anthropicBlock
		switch m.Role {
		case agent.RoleUser:
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
		case agent.RoleAssistant:
			role = "assistant"
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: call.ID, Name: call.Name, Input: toolInput(call)})
			}
		case agent.RoleTool:
			blocks = append(blocks, anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		}
		if len(blocks) == 0 {
			continue
		}

		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == role {
			out.Messages[n-1].Content = append(out.Messages[n-1].Content, blocks...)
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: role, Content: blocks})
	}

	if !IsSearchModel(model) {
		for _, spec := range req.Tools {
			out.Tools = append(out.Tools, anthropicTool{Name: spec.Name, Description: spec.Description, InputSchema: schemaOf(spec)})
		}
	}
	return out
}

// toolInput returns the call's arguments as a JSON object, falling back to {}.
func toolInput(call stream.ToolCall) json.RawMessage {
	if gjson.Valid(call.Arguments) && gjson.Parse(call.Arguments).IsObject() {
		return json.RawMessage(call.Arguments)
	}
	return json.RawMessage("{}")
}
