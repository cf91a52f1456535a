// Package llm abstracts the hosted language model behind two small
// interfaces: single-shot text generation and tool-calling chat.
package llm

import "context"

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ToolChatter runs one model turn over a conversation, optionally returning
// tool calls instead of (or alongside) text.
type ToolChatter interface {
	Chat(ctx context.Context, system string, history []ChatMessage, tools []ToolSpec) (*ChatReply, error)
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ChatMessage is one entry of the conversation memory. It is persisted as JSON.
type ChatMessage struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the observation fed back to the model after a tool call.
type ToolResult struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolSpec declares a tool to the model. Every parameter is a string.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// ToolParam is one string parameter of a tool.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// ChatReply is the model's answer for one turn.
type ChatReply struct {
	Text      string
	ToolCalls []ToolCall
}
