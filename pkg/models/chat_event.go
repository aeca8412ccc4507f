package models

import (
	"github.com/google/uuid"
)

// ============================================================================
// Chat Events (published to the conversation, streamed over SSE)
// ============================================================================

// ChatEventType identifies a conversation event.
type ChatEventType string

const (
	ChatEventText        ChatEventType = "text"
	ChatEventInteractive ChatEventType = "interactive"
	ChatEventToolCall    ChatEventType = "tool_call"
	ChatEventToolResult  ChatEventType = "tool_result"
	ChatEventDone        ChatEventType = "done"
	ChatEventError       ChatEventType = "error"
)

// ChatEvent is one message pushed to a conversation's subscriber stream.
type ChatEvent struct {
	Type    ChatEventType `json:"type"`
	ID      *uuid.UUID    `json:"id,omitempty"`
	Content string        `json:"content,omitempty"`
	Data    any           `json:"data,omitempty"`
}

// ToolCall is an LLM tool call request.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the function name and its JSON-encoded arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func NewTextEvent(content string) ChatEvent {
	return ChatEvent{Type: ChatEventText, Content: content}
}

// NewInteractiveEvent wraps a chart render payload. The id lets a client
// correlate the chart with the tool invocation that produced it.
func NewInteractiveEvent(invocationID uuid.UUID, payload *RenderPayload) ChatEvent {
	return ChatEvent{Type: ChatEventInteractive, ID: &invocationID, Data: payload}
}

func NewToolCallEvent(toolCall ToolCall) ChatEvent {
	return ChatEvent{Type: ChatEventToolCall, Data: toolCall}
}

func NewToolResultEvent(toolID string, result any) ChatEvent {
	return ChatEvent{Type: ChatEventToolResult, Content: toolID, Data: result}
}

func NewDoneEvent() ChatEvent {
	return ChatEvent{Type: ChatEventDone}
}

func NewErrorEvent(err string) ChatEvent {
	return ChatEvent{Type: ChatEventError, Content: err}
}
