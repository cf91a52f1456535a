package relay

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"github.com/google/uuid"
)

// Texts of events the relay produces itself.
const (
	DefaultFinalText = "The interview has concluded."
	TimeoutText      = "The agent timed out."
	TransportText    = "An error occurred communicating with the agent."
)

// Poller turns one agent task into a stream of events.
type Poller struct {
	interval time.Duration
	maxPolls int
	logger   *slog.Logger
}

// NewPoller creates a poller that checks the task every interval, at most
// maxPolls times.
func NewPoller(interval time.Duration, maxPolls int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{interval: interval, maxPolls: maxPolls, logger: logger}
}

// NewContextID mints a conversation identifier.
func NewContextID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Stream sends content to the agent in contextID (minted when empty) and
// yields a thought for each new working notice followed by exactly one
// terminal event. On timeout the task is abandoned, not canceled.
func (p *Poller) Stream(ctx context.Context, client AgentClient, content, contextID, userID string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if contextID == "" {
			contextID = NewContextID()
			p.logger.Info("Starting new conversation", "context_id", contextID)
		}
		event := func(kind, text string) Event {
			return Event{Type: kind, Content: text, ContextID: contextID}
		}

		msg := a2a.NewTextMessage(a2a.RoleUser, content, contextID, "")
		msg.Metadata = map[string]any{"user_id": userID}

		task, err := client.SendMessage(ctx, *msg)
		if err != nil {
			p.logger.Error("Failed to send message to agent", "context_id", contextID, "error", err)
			yield(event(EventError, TransportText))
			return
		}
		if ev, done := terminalEvent(task, event); done {
			yield(ev)
			return
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		lastThought := ""
		for range p.maxPolls {
			select {
			case <-ctx.Done():
				p.logger.Info("Caller went away, abandoning task", "task_id", task.ID, "context_id", contextID)
				return
			case <-ticker.C:
			}

			task, err = client.GetTask(ctx, task.ID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("Failed to poll agent task", "context_id", contextID, "error", err)
				yield(event(EventError, TransportText))
				return
			}
			if ev, done := terminalEvent(task, event); done {
				yield(ev)
				return
			}
			if task.Status.State == a2a.TaskStateWorking {
				if thought := task.StatusText(); thought != "" && thought != lastThought {
					lastThought = thought
					if !yield(event(EventThought, thought)) {
						return
					}
				}
			}
		}

		p.logger.Warn("Agent task timed out", "task_id", task.ID, "context_id", contextID, "polls", p.maxPolls)
		yield(event(EventError, TimeoutText))
	}
}

func terminalEvent(task *a2a.Task, event func(kind, text string) Event) (Event, bool) {
	switch task.Status.State {
	case a2a.TaskStateCompleted:
		text := task.StatusText()
		if text == "" {
			text = DefaultFinalText
		}
		return event(EventFinal, text), true
	case a2a.TaskStateFailed, a2a.TaskStateCanceled, a2a.TaskStateRejected:
		text := task.StatusText()
		if text == "" {
			text = "The agent task ended in state " + string(task.Status.State) + "."
		}
		return event(EventError, text), true
	}
	return Event{}, false
}
