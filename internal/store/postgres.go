package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Repository using PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPostgres connects to databaseURL and applies pending migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*PGStore, error) {
	store, err := ConnectPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.db.Close()
		return nil, err
	}
	return store, nil
}

// ConnectPostgres connects to databaseURL without touching the schema.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGStore{db: pool}, nil
}

// Ping verifies database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

// CreateSession inserts a new interview session with defaults.
func (s *PGStore) CreateSession(ctx context.Context, userID string) (*domain.InterviewSession, error) {
	session := &domain.InterviewSession{
		ID:                uuid.NewString(),
		UserID:            userID,
		CurrentTopic:      domain.DefaultTopic,
		CurrentDifficulty: domain.DefaultDifficulty,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO interview_sessions (id, user_id, current_topic, current_difficulty)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		session.ID, session.UserID, session.CurrentTopic, string(session.CurrentDifficulty),
	).Scan(&session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by id.
func (s *PGStore) GetSession(ctx context.Context, sessionID string) (*domain.InterviewSession, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	var session domain.InterviewSession
	var difficulty string
	err := s.db.QueryRow(ctx,
		`SELECT id::text, user_id, current_topic, current_difficulty,
		        question_count, correct_count, created_at
		 FROM interview_sessions WHERE id = $1`,
		sessionID,
	).Scan(
		&session.ID, &session.UserID, &session.CurrentTopic, &difficulty,
		&session.QuestionCount, &session.CorrectCount, &session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.CurrentDifficulty = domain.Difficulty(difficulty)
	return &session, nil
}

const pgTurnColumns = `id::text, session_id::text, question_number, question_text,
	candidate_answer, evaluation_result, feedback_text, created_at`

// ListTurns returns the session's turns in question order.
func (s *PGStore) ListTurns(ctx context.Context, sessionID string) ([]domain.InterviewTurn, error) {
	turns := make([]domain.InterviewTurn, 0)
	if _, err := uuid.Parse(sessionID); err != nil {
		return turns, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+pgTurnColumns+` FROM interview_turns WHERE session_id = $1 ORDER BY question_number ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		turn, err := scanPGTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, *turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// LatestTurn returns the highest-numbered turn of the session.
func (s *PGStore) LatestTurn(ctx context.Context, sessionID string) (*domain.InterviewTurn, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	turn, err := scanPGTurn(s.db.QueryRow(ctx,
		`SELECT `+pgTurnColumns+` FROM interview_turns WHERE session_id = $1 ORDER BY question_number DESC LIMIT 1`,
		sessionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no turns for session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// AppendTurn bumps question_count and inserts the matching turn in one transaction.
// The row lock taken by the UPDATE serialises concurrent appends on one session.
func (s *PGStore) AppendTurn(ctx context.Context, sessionID, questionText string) (*domain.InterviewTurn, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append turn: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var number int
	err = tx.QueryRow(ctx,
		`UPDATE interview_sessions SET question_count = question_count + 1 WHERE id = $1 RETURNING question_count`,
		sessionID,
	).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, wrapWriteErr("increment question count", err)
	}

	turn := &domain.InterviewTurn{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		QuestionNumber: number,
		QuestionText:   questionText,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO interview_turns (id, session_id, question_number, question_text)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		turn.ID, turn.SessionID, turn.QuestionNumber, turn.QuestionText,
	).Scan(&turn.CreatedAt)
	if err != nil {
		return nil, wrapWriteErr("insert turn", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapWriteErr("commit append turn", err)
	}
	return turn, nil
}

// RecordEvaluation writes the evaluation onto the turn and updates the session.
func (s *PGStore) RecordEvaluation(ctx context.Context, sessionID, turnID, answer string, eval domain.Evaluation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record evaluation: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx,
		`UPDATE interview_turns
		 SET candidate_answer = $1, evaluation_result = $2, feedback_text = $3
		 WHERE id = $4 AND session_id = $5 AND evaluation_result IS NULL`,
		answer, string(eval.Verdict), eval.Feedback, turnID, sessionID,
	)
	if err != nil {
		return wrapWriteErr("update turn", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("turn %s already evaluated: %w", turnID, domain.ErrConflict)
	}

	correct := 0
	if eval.Verdict == domain.VerdictCorrect {
		correct = 1
	}
	tag, err = tx.Exec(ctx,
		`UPDATE interview_sessions
		 SET correct_count = correct_count + $1, current_topic = $2, current_difficulty = $3
		 WHERE id = $4`,
		correct, eval.NextTopic, string(eval.NextDifficulty), sessionID,
	)
	if err != nil {
		return wrapWriteErr("update session", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapWriteErr("commit record evaluation", err)
	}
	return nil
}

// GetConversation retrieves conversation memory for a context id.
func (s *PGStore) GetConversation(ctx context.Context, contextID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.QueryRow(ctx,
		`SELECT context_id, user_id, messages_json, created_at, updated_at
		 FROM agent_conversations WHERE context_id = $1`,
		contextID,
	).Scan(&conv.ContextID, &conv.UserID, &conv.MessagesJSON, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// UpsertConversation creates or updates conversation memory.
func (s *PGStore) UpsertConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO agent_conversations (context_id, user_id, messages_json)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (context_id) DO UPDATE SET
			messages_json = EXCLUDED.messages_json,
			updated_at = NOW()`,
		conv.ContextID, conv.UserID, conv.MessagesJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes conversation memory.
func (s *PGStore) DeleteConversation(ctx context.Context, contextID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM agent_conversations WHERE context_id = $1`, contextID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CleanupExpiredConversations removes conversations not updated within ttl.
func (s *PGStore) CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM agent_conversations WHERE updated_at < $1`,
		time.Now().Add(-ttl),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPGTurn(row pgx.Row) (*domain.InterviewTurn, error) {
	var turn domain.InterviewTurn
	var answer, verdict, feedback *string
	err := row.Scan(
		&turn.ID, &turn.SessionID, &turn.QuestionNumber, &turn.QuestionText,
		&answer, &verdict, &feedback, &turn.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan turn row: %w", err)
	}
	if answer != nil {
		turn.Answer = *answer
	}
	if verdict != nil {
		turn.Verdict = domain.Verdict(*verdict)
	}
	if feedback != nil {
		turn.Feedback = *feedback
	}
	return &turn, nil
}
