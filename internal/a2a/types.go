// Package a2a holds the wire types of the agent task protocol shared by the
// agent server, the relay and the CLI.
package a2a

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Protocol errors shared by every transport.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskNotCancelable = errors.New("task cannot be canceled")
	ErrInvalidParams     = errors.New("invalid params")
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateRejected  TaskState = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Part is a message fragment. Only text parts are produced.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// Message is one protocol message.
type Message struct {
	Kind      string         `json:"kind"`
	Role      string         `json:"role"`
	Parts     []Part         `json:"parts"`
	MessageID string         `json:"messageId"`
	ContextID string         `json:"contextId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role, text, contextID, taskID string) *Message {
	return &Message{
		Kind:      "message",
		Role:      role,
		Parts:     []Part{{Kind: "text", Text: text}},
		MessageID: uuid.NewString(),
		ContextID: contextID,
		TaskID:    taskID,
	}
}

// Text concatenates the text parts of m.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind == "" || p.Kind == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// MetadataString returns metadata[key] when it is a non-empty string.
func (m *Message) MetadataString(key string) string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[key].(string)
	return s
}

// TaskStatus is a task's current state and its latest status message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Task is the unit of work created for each inbound message.
type Task struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
}

// StatusText returns the text of the task's status message.
func (t *Task) StatusText() string {
	return t.Status.Message.Text()
}

// Timestamp formats t the way task statuses carry it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MessageSendParams are the params of message/send.
type MessageSendParams struct {
	Message Message `json:"message"`
}

// TaskIDParams are the params of tasks/get and tasks/cancel.
type TaskIDParams struct {
	ID string `json:"id"`
}

// AgentCard describes an agent to its clients.
type AgentCard struct {
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	URL                  string            `json:"url"`
	Version              string            `json:"version"`
	ProtocolVersion      string            `json:"protocolVersion"`
	PreferredTransport   string            `json:"preferredTransport,omitempty"`
	AdditionalInterfaces []AgentInterface  `json:"additionalInterfaces,omitempty"`
	Provider             *AgentProvider    `json:"provider,omitempty"`
	DefaultInputModes    []string          `json:"defaultInputModes"`
	DefaultOutputModes   []string          `json:"defaultOutputModes"`
	Capabilities         AgentCapabilities `json:"capabilities"`
	Skills               []AgentSkill      `json:"skills"`
}

// AgentInterface is an alternative transport endpoint.
type AgentInterface struct {
	URL       string `json:"url"`
	Transport string `json:"transport"`
}

// AgentProvider names the organisation behind an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// AgentCapabilities lists optional protocol features.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentSkill describes one thing the agent can do.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}
