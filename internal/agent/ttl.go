package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/excel-interviewer/internal/store"
)

const ttlWorkerInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically prunes
// finished tasks and idle conversations.
func StartTTLWorker(ctx context.Context, tasks *TaskStore, convs store.ConversationRepository, taskTTL, conversationTTL time.Duration) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "task_ttl", taskTTL, "conversation_ttl", conversationTTL)

		for {
			select {
			case <-ticker.C:
				cleanupExpired(ctx, tasks, convs, taskTTL, conversationTTL)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupExpired(ctx context.Context, tasks *TaskStore, convs store.ConversationRepository, taskTTL, conversationTTL time.Duration) {
	if removed := tasks.Sweep(taskTTL); removed > 0 {
		slog.Info("TTL worker pruned finished tasks", "count", removed, "remaining", tasks.Len())
	}

	deleted, err := convs.CleanupExpiredConversations(ctx, conversationTTL)
	if err != nil {
		slog.Error("TTL worker failed to cleanup conversations", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("TTL worker cleaned up idle conversations", "count", deleted)
	}
}
