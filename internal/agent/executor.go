package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/ashureev/excel-interviewer/internal/llm"
	"github.com/ashureev/excel-interviewer/internal/shared"
	"github.com/ashureev/excel-interviewer/internal/store"
)

var (
	errNoFinalResponse = errors.New("agent workflow completed without a final response")
	errStepLimit       = errors.New("agent exceeded its tool step limit")
)

const skippedToolText = "not executed: an earlier tool call in this turn failed"

// ToolInvoker exposes the interview tools to the executor.
type ToolInvoker interface {
	Tools() []llm.ToolSpec
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Executor drives the model through the think, call tool, observe loop for
// one user message at a time per conversation.
type Executor struct {
	model       llm.ToolChatter
	tools       ToolInvoker
	convs       store.ConversationRepository
	instruction string
	maxSteps    int
	locks       sync.Map // contextID -> *sync.Mutex
	logger      *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(model llm.ToolChatter, tools ToolInvoker, convs store.ConversationRepository, instruction string, maxSteps int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSteps <= 0 {
		maxSteps = 12
	}
	return &Executor{
		model:       model,
		tools:       tools,
		convs:       convs,
		instruction: instruction,
		maxSteps:    maxSteps,
		logger:      logger,
	}
}

func (e *Executor) lockFor(contextID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(contextID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Run handles one user message in contextID and returns the model's final
// text. notify receives one notice before and one after every tool call.
func (e *Executor) Run(ctx context.Context, contextID, userID, text string, notify func(string)) (string, error) {
	mu := e.lockFor(contextID)
	mu.Lock()
	defer mu.Unlock()

	conv, history, err := e.load(ctx, contextID, userID)
	if err != nil {
		return "", err
	}
	history = append(history, llm.ChatMessage{Role: llm.RoleUser, Text: text})
	system := systemInstruction(e.instruction, conv.UserID)

	for step := 0; step < e.maxSteps; step++ {
		reply, err := e.model.Chat(ctx, system, history, e.tools.Tools())
		if err != nil {
			return "", fmt.Errorf("model call failed: %w", err)
		}

		if len(reply.ToolCalls) == 0 {
			if reply.Text == "" {
				return "", errNoFinalResponse
			}
			history = append(history, llm.ChatMessage{Role: llm.RoleModel, Text: reply.Text})
			if err := e.save(ctx, conv, history); err != nil {
				return "", err
			}
			return reply.Text, nil
		}

		history = append(history, llm.ChatMessage{Role: llm.RoleModel, Text: reply.Text, ToolCalls: reply.ToolCalls})
		results := make([]llm.ToolResult, 0, len(reply.ToolCalls))
		for i, call := range reply.ToolCalls {
			notify(fmt.Sprintf("Calling tool: `%s`...", call.Name))
			out, err := e.tools.Call(ctx, call.Name, call.Args)
			if err != nil {
				e.logger.Warn("Tool call failed", "context_id", contextID, "tool", call.Name, "error", err)
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				results = append(results, llm.ToolResult{ID: call.ID, Name: call.Name, Content: err.Error(), IsError: true})
				// Every call in the turn needs a result or the history cannot be replayed.
				for _, skipped := range reply.ToolCalls[i+1:] {
					results = append(results, llm.ToolResult{ID: skipped.ID, Name: skipped.Name, Content: skippedToolText, IsError: true})
				}
				history = append(history,
					llm.ChatMessage{Role: llm.RoleTool, ToolResults: results},
					llm.ChatMessage{Role: llm.RoleModel, Text: "I encountered an error: " + err.Error()},
				)
				// Keep the failed exchange so session ids returned by earlier calls survive.
				if saveErr := e.save(ctx, conv, history); saveErr != nil {
					e.logger.Warn("Failed to persist conversation after tool error", "context_id", contextID, "error", saveErr)
				}
				return "", fmt.Errorf("tool %s failed: %w", call.Name, err)
			}
			results = append(results, llm.ToolResult{ID: call.ID, Name: call.Name, Content: out})
			notify(fmt.Sprintf("Tool `%s` completed.", call.Name))
		}
		history = append(history, llm.ChatMessage{Role: llm.RoleTool, ToolResults: results})
	}

	return "", fmt.Errorf("%w (%d steps)", errStepLimit, e.maxSteps)
}

func (e *Executor) load(ctx context.Context, contextID, userID string) (*domain.Conversation, []llm.ChatMessage, error) {
	conv, err := e.convs.GetConversation(ctx, contextID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return &domain.Conversation{ContextID: contextID, UserID: userID}, nil, nil
	}

	var history []llm.ChatMessage
	if conv.MessagesJSON != "" {
		if err := json.Unmarshal([]byte(conv.MessagesJSON), &history); err != nil {
			return nil, nil, fmt.Errorf("decode conversation %s: %w", contextID, err)
		}
	}
	return conv, history, nil
}

// save persists the history, retrying with backoff while SQLite reports the
// database as busy.
func (e *Executor) save(ctx context.Context, conv *domain.Conversation, history []llm.ChatMessage) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	conv.MessagesJSON = string(data)

	const maxRetries = 3
	baseDelay := 50 * time.Millisecond
	for i := 0; i < maxRetries; i++ {
		err = e.convs.UpsertConversation(ctx, conv)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		e.logger.Debug("Conversation save hit a locked database, retrying",
			"context_id", conv.ContextID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("save conversation %s: %w", conv.ContextID, err)
}
