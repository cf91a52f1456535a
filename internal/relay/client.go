// Package relay implements the browser-facing streaming relay. It forwards a
// chat message to an agent, polls the resulting task and re-emits its
// progress as a flat event stream.
package relay

import (
	"context"
	"errors"

	"github.com/ashureev/excel-interviewer/internal/a2a"
)

// ErrUnknownAgent is returned for an agent id missing from the registry.
var ErrUnknownAgent = errors.New("unknown agent")

// AgentClient is a connection to one agent over any supported transport.
type AgentClient interface {
	SendMessage(ctx context.Context, msg a2a.Message) (*a2a.Task, error)
	GetTask(ctx context.Context, id string) (*a2a.Task, error)
	CancelTask(ctx context.Context, id string) (*a2a.Task, error)
	Close() error
}

// Event types emitted to the browser.
const (
	EventThought = "thought"
	EventFinal   = "final"
	EventError   = "error"
)

// Event is one streamed relay event.
type Event struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	ContextID string `json:"context_id"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventFinal || e.Type == EventError
}
