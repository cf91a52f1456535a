package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// repositories returns every backend available in this environment.
func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	repos := map[string]Repository{"sqlite": newTestSQLite(t)}
	if os.Getenv(postgresURLEnv) != "" {
		repos["postgres"] = newTestPostgres(t)
	}
	return repos
}

func TestCreateAndGetSession(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created, err := repo.CreateSession(ctx, "candidate-1")
			if err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			got, err := repo.GetSession(ctx, created.ID)
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			want := &domain.InterviewSession{
				ID:                created.ID,
				UserID:            "candidate-1",
				CurrentTopic:      "Formulas",
				CurrentDifficulty: domain.DifficultyBeginner,
			}
			if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(domain.InterviewSession{}, "CreatedAt")); diff != "" {
				t.Fatalf("session mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.GetSession(context.Background(), "00000000-0000-0000-0000-000000000000")
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("GetSession() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAppendTurnNumbersContiguously(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, err := repo.CreateSession(ctx, "u")
			if err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			for i := 1; i <= 3; i++ {
				turn, err := repo.AppendTurn(ctx, session.ID, "question")
				if err != nil {
					t.Fatalf("AppendTurn(%d) error = %v", i, err)
				}
				if turn.QuestionNumber != i {
					t.Fatalf("question number = %d, want %d", turn.QuestionNumber, i)
				}
			}

			got, err := repo.GetSession(ctx, session.ID)
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			if got.QuestionCount != 3 {
				t.Fatalf("question count = %d, want 3", got.QuestionCount)
			}

			turns, err := repo.ListTurns(ctx, session.ID)
			if err != nil {
				t.Fatalf("ListTurns() error = %v", err)
			}
			for i, turn := range turns {
				if turn.QuestionNumber != i+1 {
					t.Fatalf("turn %d has number %d", i, turn.QuestionNumber)
				}
			}

			latest, err := repo.LatestTurn(ctx, session.ID)
			if err != nil {
				t.Fatalf("LatestTurn() error = %v", err)
			}
			if latest.QuestionNumber != 3 {
				t.Fatalf("latest number = %d, want 3", latest.QuestionNumber)
			}
		})
	}
}

func TestAppendTurnUnknownSession(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.AppendTurn(context.Background(), "00000000-0000-0000-0000-000000000000", "q")
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("AppendTurn() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestConcurrentAppendTurnKeepsNumbersUnique(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, err := repo.CreateSession(ctx, "u")
			if err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := repo.AppendTurn(ctx, session.ID, "q"); err != nil {
						errs <- err
					}
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				if !errors.Is(err, domain.ErrConflict) {
					t.Fatalf("unexpected append error: %v", err)
				}
			}

			got, err := repo.GetSession(ctx, session.ID)
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			turns, err := repo.ListTurns(ctx, session.ID)
			if err != nil {
				t.Fatalf("ListTurns() error = %v", err)
			}
			if len(turns) != got.QuestionCount {
				t.Fatalf("turns = %d, question_count = %d", len(turns), got.QuestionCount)
			}
			for i, turn := range turns {
				if turn.QuestionNumber != i+1 {
					t.Fatalf("gap in numbering at %d: %d", i, turn.QuestionNumber)
				}
			}
		})
	}
}

func TestRecordEvaluation(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, err := repo.CreateSession(ctx, "u")
			if err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}
			turn, err := repo.AppendTurn(ctx, session.ID, "What does SUM do?")
			if err != nil {
				t.Fatalf("AppendTurn() error = %v", err)
			}

			eval := domain.Evaluation{
				Verdict:        domain.VerdictCorrect,
				Feedback:       "Good.",
				NextTopic:      "Lookup Functions",
				NextDifficulty: domain.DifficultyIntermediate,
			}
			if err := repo.RecordEvaluation(ctx, session.ID, turn.ID, "adds numbers", eval); err != nil {
				t.Fatalf("RecordEvaluation() error = %v", err)
			}

			got, err := repo.GetSession(ctx, session.ID)
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			if got.CorrectCount != 1 || got.CurrentTopic != "Lookup Functions" || got.CurrentDifficulty != domain.DifficultyIntermediate {
				t.Fatalf("session not updated: %+v", got)
			}

			latest, err := repo.LatestTurn(ctx, session.ID)
			if err != nil {
				t.Fatalf("LatestTurn() error = %v", err)
			}
			if latest.Answer != "adds numbers" || latest.Verdict != domain.VerdictCorrect || latest.Feedback != "Good." {
				t.Fatalf("turn not updated: %+v", latest)
			}

			err = repo.RecordEvaluation(ctx, session.ID, turn.ID, "again", eval)
			if !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("second RecordEvaluation() error = %v, want ErrConflict", err)
			}
			again, err := repo.GetSession(ctx, session.ID)
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			if again.CorrectCount != 1 {
				t.Fatalf("correct count = %d after rejected re-evaluation", again.CorrectCount)
			}
		})
	}
}

func TestRecordEvaluationPartialDoesNotScore(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, _ := repo.CreateSession(ctx, "u")
			turn, _ := repo.AppendTurn(ctx, session.ID, "q")

			eval := domain.Evaluation{
				Verdict:        domain.VerdictPartiallyCorrect,
				Feedback:       "Close.",
				NextTopic:      "Formulas",
				NextDifficulty: domain.DifficultyBeginner,
			}
			if err := repo.RecordEvaluation(ctx, session.ID, turn.ID, "a", eval); err != nil {
				t.Fatalf("RecordEvaluation() error = %v", err)
			}
			got, _ := repo.GetSession(ctx, session.ID)
			if got.CorrectCount != 0 {
				t.Fatalf("correct count = %d, want 0", got.CorrectCount)
			}
		})
	}
}

func TestLatestTurnNoTurns(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, _ := repo.CreateSession(ctx, "u")

			if _, err := repo.LatestTurn(ctx, session.ID); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("LatestTurn() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDeletingSessionCascadesTurns(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()
	session, _ := repo.CreateSession(ctx, "u")
	if _, err := repo.AppendTurn(ctx, session.ID, "q"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	if _, err := repo.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE id = ?`, session.ID); err != nil {
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

func TestConversationLifecycle(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	got, err := repo.GetConversation(ctx, "ctx-1")
	if err != nil || got != nil {
		t.Fatalf("GetConversation() = %v, %v; want nil, nil", got, err)
	}

	conv := &domain.Conversation{ContextID: "ctx-1", UserID: "u", MessagesJSON: `[]`}
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}
	conv.MessagesJSON = `[{"role":"user"}]`
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}

	got, err = repo.GetConversation(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.MessagesJSON != `[{"role":"user"}]` {
		t.Fatalf("messages = %s", got.MessagesJSON)
	}

	repo.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err := repo.CleanupExpiredConversations(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredConversations() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("cleaned = %d, want 1", n)
	}

	if err := repo.DeleteConversation(ctx, "ctx-1"); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
}

func TestLoadMigrationsSorted(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	var names []string
	for _, m := range migrations {
		names = append(names, m.Name)
		if m.Down == "" {
			t.Fatalf("migration %s has no down file", m.Name)
		}
	}
	want := []string{"001_init", "002_agent_conversations"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("migration order mismatch (-want +got):\n%s", diff)
	}
}
