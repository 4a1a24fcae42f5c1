// Package llm provides the model backend client.
package llm

import (
	"context"
	"fmt"
)

// Message represents a chat message for the model backend.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model. Arguments use proper
// Go types — wire format conversion (the JSON-string encoding of the
// chat-completions API) happens at the provider boundary.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from the model backend: either
// plain content or one or more tool calls.
type ChatResponse struct {
	Model   string
	Content string

	ToolCalls []ToolCall

	// Token usage when the provider reports it.
	InputTokens  int
	OutputTokens int
}

// Client is the interface the agent core calls the model backend through.
type Client interface {
	// Complete sends a chat completion request. tools may be nil for
	// plain completions; systemPrompt, when non-empty, is prepended as
	// the system message.
	Complete(ctx context.Context, messages []Message, tools []map[string]any, systemPrompt string) (*ChatResponse, error)
}

// UnavailableError reports that the backend could not be reached or
// refused the request. It aborts the current agent run; there is no
// automatic retry inside the loop.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// MalformedResponseError reports that the backend answered with a payload
// that could not be decoded into a completion.
type MalformedResponseError struct {
	Provider string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s backend returned malformed response: %v", e.Provider, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
