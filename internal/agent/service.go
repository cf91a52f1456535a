package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"github.com/google/uuid"
)

// Status texts set by the service itself.
const (
	CanceledText = "The Excel Interviewer task has been canceled."
	RejectedText = "Please send a message to continue the interview."
)

// Runner executes one user message within a conversation.
type Runner interface {
	Run(ctx context.Context, contextID, userID, text string, notify func(string)) (string, error)
}

// Service implements the task operations shared by the JSON-RPC and gRPC
// transports. Each accepted message runs in its own goroutine.
type Service struct {
	runner Runner
	tasks  *TaskStore
	logger *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a task service.
func NewService(runner Runner, tasks *TaskStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		runner:  runner,
		tasks:   tasks,
		logger:  logger,
		baseCtx: ctx,
		stop:    stop,
	}
}

// SendMessage creates a task for msg and starts working on it. The returned
// snapshot is taken before execution begins.
func (s *Service) SendMessage(_ context.Context, msg a2a.Message) (*a2a.Task, error) {
	if msg.Role != "" && msg.Role != a2a.RoleUser {
		return nil, fmt.Errorf("%w: message role must be %q", a2a.ErrInvalidParams, a2a.RoleUser)
	}

	contextID := msg.ContextID
	if contextID == "" {
		contextID = newHexID()
	}
	task := s.tasks.Create(contextID)

	text := strings.TrimSpace(msg.Text())
	if text == "" {
		return s.tasks.Update(task.ID, a2a.TaskStateRejected, RejectedText)
	}

	userID := msg.MetadataString("user_id")
	if userID == "" {
		userID = "user_" + newHexID()[:6]
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.tasks.SetCancel(task.ID, cancel)

	s.logger.Info("Task accepted", "task_id", task.ID, "context_id", contextID, "user_id", userID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.execute(ctx, task.ID, contextID, userID, text)
	}()

	return task, nil
}

func (s *Service) execute(ctx context.Context, taskID, contextID, userID, text string) {
	final, err := s.runner.Run(ctx, contextID, userID, text, func(notice string) {
		s.setState(taskID, a2a.TaskStateWorking, notice)
	})
	switch {
	case err == nil:
		s.setState(taskID, a2a.TaskStateCompleted, final)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		s.setState(taskID, a2a.TaskStateCanceled, CanceledText)
	default:
		s.logger.Error("Task failed", "task_id", taskID, "context_id", contextID, "error", err)
		s.setState(taskID, a2a.TaskStateFailed, "I encountered an error: "+err.Error())
	}
}

// setState ignores refusals: a task canceled mid-run keeps its canceled state.
func (s *Service) setState(taskID string, state a2a.TaskState, text string) {
	if _, err := s.tasks.Update(taskID, state, text); err != nil && !errors.Is(err, errTaskFinal) {
		s.logger.Warn("Failed to update task", "task_id", taskID, "state", state, "error", err)
	}
}

// GetTask returns the current state of a task.
func (s *Service) GetTask(_ context.Context, id string) (*a2a.Task, error) {
	return s.tasks.Get(id)
}

// CancelTask cancels an in-flight task.
func (s *Service) CancelTask(_ context.Context, id string) (*a2a.Task, error) {
	task, err := s.tasks.Cancel(id, CanceledText)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Task canceled", "task_id", id, "context_id", task.ContextID)
	return task, nil
}

// Close stops running tasks and waits for their goroutines to exit.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

func newHexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
