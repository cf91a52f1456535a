// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/excel-interviewer/internal/config"
	"github.com/ashureev/excel-interviewer/internal/domain"
)

// InterviewRepository persists interview sessions and their turns.
type InterviewRepository interface {
	// CreateSession inserts a session with default topic, difficulty and zero counters.
	CreateSession(ctx context.Context, userID string) (*domain.InterviewSession, error)

	// GetSession returns domain.ErrNotFound for an unknown id.
	GetSession(ctx context.Context, sessionID string) (*domain.InterviewSession, error)

	// ListTurns returns the session's turns ordered by question number.
	ListTurns(ctx context.Context, sessionID string) ([]domain.InterviewTurn, error)

	// AppendTurn increments question_count and inserts a turn numbered with the
	// new count, atomically. A concurrent duplicate yields domain.ErrConflict.
	AppendTurn(ctx context.Context, sessionID, questionText string) (*domain.InterviewTurn, error)

	// LatestTurn returns the highest-numbered turn, or domain.ErrNotFound.
	LatestTurn(ctx context.Context, sessionID string) (*domain.InterviewTurn, error)

	// RecordEvaluation stores the answer and verdict on an unevaluated turn and
	// applies the adaptive update to the session, atomically.
	RecordEvaluation(ctx context.Context, sessionID, turnID, answer string, eval domain.Evaluation) error
}

// ConversationRepository persists agent conversation memory.
type ConversationRepository interface {
	// GetConversation returns nil, nil when no conversation exists.
	GetConversation(ctx context.Context, contextID string) (*domain.Conversation, error)

	// UpsertConversation creates or replaces a conversation's history.
	UpsertConversation(ctx context.Context, conv *domain.Conversation) error

	// DeleteConversation removes a conversation.
	DeleteConversation(ctx context.Context, contextID string) error

	// CleanupExpiredConversations removes conversations idle for longer than ttl.
	CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error)
}

// Repository is the full persistence surface.
type Repository interface {
	InterviewRepository
	ConversationRepository

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Open returns the repository selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
