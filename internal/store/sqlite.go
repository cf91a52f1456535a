package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/ashureev/excel-interviewer/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys are per connection in SQLite.
	dsn := "file:" + dbPath +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS interview_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		current_topic TEXT NOT NULL,
		current_difficulty TEXT NOT NULL,
		question_count INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		CHECK (correct_count >= 0 AND correct_count <= question_count)
	);
	CREATE INDEX IF NOT EXISTS idx_interview_sessions_user ON interview_sessions(user_id);

	CREATE TABLE IF NOT EXISTS interview_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
		question_number INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		candidate_answer TEXT,
		evaluation_result TEXT,
		feedback_text TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, question_number)
	);

	CREATE TABLE IF NOT EXISTS agent_conversations (
		context_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agent_conversations_updated ON agent_conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new interview session with defaults.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID string) (*domain.InterviewSession, error) {
	session := &domain.InterviewSession{
		ID:                uuid.NewString(),
		UserID:            userID,
		CurrentTopic:      domain.DefaultTopic,
		CurrentDifficulty: domain.DefaultDifficulty,
		CreatedAt:         time.Unix(s.now().Unix(), 0),
	}

	query := `
		INSERT INTO interview_sessions (id, user_id, current_topic, current_difficulty, question_count, correct_count, created_at)
		VALUES (?, ?, ?, ?, 0, 0, ?)`
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.CurrentTopic,
		string(session.CurrentDifficulty), session.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.InterviewSession, error) {
	query := `
		SELECT id, user_id, current_topic, current_difficulty,
		       question_count, correct_count, created_at
		FROM interview_sessions WHERE id = ?`

	var session domain.InterviewSession
	var difficulty string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID, &session.UserID, &session.CurrentTopic, &difficulty,
		&session.QuestionCount, &session.CorrectCount, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CurrentDifficulty = domain.Difficulty(difficulty)
	session.CreatedAt = time.Unix(createdAt, 0)
	return &session, nil
}

// ListTurns returns the session's turns in question order.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]domain.InterviewTurn, error) {
	query := `
		SELECT id, session_id, question_number, question_text,
		       candidate_answer, evaluation_result, feedback_text, created_at
		FROM interview_turns WHERE session_id = ?
		ORDER BY question_number ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	turns := make([]domain.InterviewTurn, 0)
	for rows.Next() {
		turn, err := scanTurn(rows)
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
func (s *SQLiteStore) LatestTurn(ctx context.Context, sessionID string) (*domain.InterviewTurn, error) {
	query := `
		SELECT id, session_id, question_number, question_text,
		       candidate_answer, evaluation_result, feedback_text, created_at
		FROM interview_turns WHERE session_id = ?
		ORDER BY question_number DESC LIMIT 1`

	turn, err := scanTurn(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no turns for session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// AppendTurn bumps question_count and inserts the matching turn in one transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, questionText string) (*domain.InterviewTurn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append turn: %w", err)
	}
	defer rollback(tx)

	var number int
	err = tx.QueryRowContext(ctx,
		`UPDATE interview_sessions SET question_count = question_count + 1 WHERE id = ? RETURNING question_count`,
		sessionID,
	).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
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
		CreatedAt:      time.Unix(s.now().Unix(), 0),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO interview_turns (id, session_id, question_number, question_text, created_at) VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.QuestionNumber, turn.QuestionText, turn.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, wrapWriteErr("insert turn", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapWriteErr("commit append turn", err)
	}
	return turn, nil
}

// RecordEvaluation writes the evaluation onto the turn and updates the session.
func (s *SQLiteStore) RecordEvaluation(ctx context.Context, sessionID, turnID, answer string, eval domain.Evaluation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record evaluation: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, `
		UPDATE interview_turns
		SET candidate_answer = ?, evaluation_result = ?, feedback_text = ?
		WHERE id = ? AND session_id = ? AND evaluation_result IS NULL`,
		answer, string(eval.Verdict), eval.Feedback, turnID, sessionID,
	)
	if err != nil {
		return wrapWriteErr("update turn", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("turn %s already evaluated: %w", turnID, domain.ErrConflict)
	}

	correct := 0
	if eval.Verdict == domain.VerdictCorrect {
		correct = 1
	}
	result, err = tx.ExecContext(ctx, `
		UPDATE interview_sessions
		SET correct_count = correct_count + ?, current_topic = ?, current_difficulty = ?
		WHERE id = ?`,
		correct, eval.NextTopic, string(eval.NextDifficulty), sessionID,
	)
	if err != nil {
		return wrapWriteErr("update session", err)
	}
	if rows, err = result.RowsAffected(); err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return wrapWriteErr("commit record evaluation", err)
	}
	return nil
}

// GetConversation retrieves conversation memory for a context id.
func (s *SQLiteStore) GetConversation(ctx context.Context, contextID string) (*domain.Conversation, error) {
	query := `
		SELECT context_id, user_id, messages_json, created_at, updated_at
		FROM agent_conversations WHERE context_id = ?`

	var conv domain.Conversation
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, contextID).Scan(
		&conv.ContextID, &conv.UserID, &conv.MessagesJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)
	return &conv, nil
}

// UpsertConversation creates or updates conversation memory.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO agent_conversations (context_id, user_id, messages_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(context_id) DO UPDATE SET
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`

	createdAt := conv.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, query,
		conv.ContextID, conv.UserID, conv.MessagesJSON, createdAt.Unix(), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes conversation memory.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, contextID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_conversations WHERE context_id = ?`, contextID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CleanupExpiredConversations removes conversations not updated within ttl.
func (s *SQLiteStore) CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := s.now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM agent_conversations WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired conversations: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*domain.InterviewTurn, error) {
	var turn domain.InterviewTurn
	var answer, verdict, feedback sql.NullString
	var createdAt int64
	err := row.Scan(
		&turn.ID, &turn.SessionID, &turn.QuestionNumber, &turn.QuestionText,
		&answer, &verdict, &feedback, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan turn row: %w", err)
	}
	turn.Answer = answer.String
	turn.Verdict = domain.Verdict(verdict.String)
	turn.Feedback = feedback.String
	turn.CreatedAt = time.Unix(createdAt, 0)
	return &turn, nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("failed to rollback transaction", "error", err)
	}
}

// wrapWriteErr maps lost races to domain.ErrConflict.
func wrapWriteErr(op string, err error) error {
	if shared.IsConflict(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
