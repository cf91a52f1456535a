package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"github.com/google/uuid"
)

// errTaskFinal is returned when an update targets a task in a terminal state.
var errTaskFinal = errors.New("task already in a terminal state")

type taskEntry struct {
	task      a2a.Task
	cancel    context.CancelFunc
	updatedAt time.Time
}

// TaskStore keeps tasks in memory. Tasks do not survive a restart; the
// conversation memory they feed is persisted separately.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*taskEntry
	now   func() time.Time
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*taskEntry),
		now:   time.Now,
	}
}

// Create registers a new submitted task in contextID.
func (s *TaskStore) Create(contextID string) *a2a.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := &taskEntry{
		task: a2a.Task{
			Kind:      "task",
			ID:        uuid.NewString(),
			ContextID: contextID,
			Status: a2a.TaskStatus{
				State:     a2a.TaskStateSubmitted,
				Timestamp: a2a.Timestamp(now),
			},
		},
		updatedAt: now,
	}
	s.tasks[entry.task.ID] = entry
	task := entry.task
	return &task
}

// Get returns a snapshot of the task.
func (s *TaskStore) Get(id string) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", a2a.ErrTaskNotFound, id)
	}
	task := entry.task
	return &task, nil
}

// Update moves a task to state with an agent message carrying text.
// Transitions out of a terminal state are refused with errTaskFinal.
func (s *TaskStore) Update(id string, state a2a.TaskState, text string) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", a2a.ErrTaskNotFound, id)
	}
	if entry.task.Status.State.Terminal() {
		return nil, errTaskFinal
	}
	s.setStatus(entry, state, text)
	if state.Terminal() {
		entry.cancel = nil
	}
	task := entry.task
	return &task, nil
}

// SetCancel attaches the function that stops the task's execution.
func (s *TaskStore) SetCancel(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.tasks[id]; ok && !entry.task.Status.State.Terminal() {
		entry.cancel = cancel
	}
}

// Cancel marks a task canceled and stops its execution. Work the task has
// already committed is left as is.
func (s *TaskStore) Cancel(id, text string) (*a2a.Task, error) {
	s.mu.Lock()
	entry, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", a2a.ErrTaskNotFound, id)
	}
	if entry.task.Status.State.Terminal() {
		state := entry.task.Status.State
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: task is %s", a2a.ErrTaskNotCancelable, state)
	}
	s.setStatus(entry, a2a.TaskStateCanceled, text)
	cancel := entry.cancel
	entry.cancel = nil
	task := entry.task
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return &task, nil
}

// Sweep removes terminal tasks last updated more than ttl ago and returns
// how many were removed.
func (s *TaskStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, entry := range s.tasks {
		if entry.task.Status.State.Terminal() && entry.updatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked tasks.
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *TaskStore) setStatus(entry *taskEntry, state a2a.TaskState, text string) {
	now := s.now()
	entry.task.Status = a2a.TaskStatus{
		State:     state,
		Message:   a2a.NewTextMessage(a2a.RoleAgent, text, entry.task.ContextID, entry.task.ID),
		Timestamp: a2a.Timestamp(now),
	}
	entry.updatedAt = now
}
