package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/google/uuid"
)

// postgresURLEnv names a disposable database the Postgres tests may write to.
const postgresURLEnv = "INTERVIEWER_TEST_DATABASE_URL"

func newTestPostgres(t *testing.T) *PGStore {
	t.Helper()
	url := os.Getenv(postgresURLEnv)
	if url == "" {
		t.Skipf("%s not set", postgresURLEnv)
	}
	s, err := NewPostgres(context.Background(), url)
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresDeletingSessionCascadesTurns(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	session, err := repo.CreateSession(ctx, "u")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := repo.AppendTurn(ctx, session.ID, "q"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	if _, err := repo.db.Exec(ctx, `DELETE FROM interview_sessions WHERE id = $1`, session.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	turns, err := repo.ListTurns(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("turns = %d after cascade, want 0", len(turns))
	}
}

func TestPostgresConversationLifecycle(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	contextID := uuid.NewString()
	t.Cleanup(func() { _ = repo.DeleteConversation(context.Background(), contextID) })

	got, err := repo.GetConversation(ctx, contextID)
	if err != nil || got != nil {
		t.Fatalf("GetConversation() = %v, %v; want nil, nil", got, err)
	}

	conv := &domain.Conversation{ContextID: contextID, UserID: "u", MessagesJSON: `[]`}
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}
	conv.MessagesJSON = `[{"role":"user"}]`
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}
	got, err = repo.GetConversation(ctx, contextID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.MessagesJSON != `[{"role":"user"}]` || got.UserID != "u" {
		t.Fatalf("conversation = %+v", got)
	}

	if _, err := repo.db.Exec(ctx,
		`UPDATE agent_conversations SET updated_at = $1 WHERE context_id = $2`,
		time.Now().Add(-48*time.Hour), contextID,
	); err != nil {
		t.Fatalf("age conversation: %v", err)
	}
	n, err := repo.CleanupExpiredConversations(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredConversations() error = %v", err)
	}
	if n < 1 {
		t.Fatalf("cleaned = %d, want at least 1", n)
	}
	if got, _ := repo.GetConversation(ctx, contextID); got != nil {
		t.Fatalf("expired conversation still present: %+v", got)
	}
}
