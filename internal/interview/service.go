// Package interview implements adaptive question generation, answer
// evaluation and interview summaries on top of the session store.
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/ashureev/excel-interviewer/internal/llm"
	"github.com/ashureev/excel-interviewer/internal/store"
)

// Question is the result of GenerateQuestion.
type Question struct {
	SessionID      string `json:"session_id"`
	QuestionNumber int    `json:"question_number"`
	QuestionText   string `json:"question_text"`
}

// EvaluationResult is the result of EvaluateAnswer.
type EvaluationResult struct {
	SessionID string `json:"session_id"`
	domain.Evaluation
}

// Summary is the final interview report.
type Summary struct {
	Score               string                   `json:"score"`
	Strengths           string                   `json:"strengths"`
	AreasForImprovement string                   `json:"areas_for_improvement"`
	FullTranscript      []domain.TranscriptEntry `json:"full_transcript"`
}

// SessionDetail is a session together with its turns.
type SessionDetail struct {
	*domain.InterviewSession
	Turns []domain.InterviewTurn `json:"turns"`
}

// Service drives the interview state machine.
type Service struct {
	repo   store.InterviewRepository
	model  llm.Generator
	logger *slog.Logger
}

// NewService creates a new interview service.
func NewService(repo store.InterviewRepository, model llm.Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, model: model, logger: logger}
}

// CreateSession starts a new interview for userID.
func (s *Service) CreateSession(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user_id is required: %w", domain.ErrInvalidInput)
	}
	session, err := s.repo.CreateSession(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("Started interview session", "session_id", session.ID, "user_id", userID)
	return session.ID, nil
}

// GetSession returns the session and its turns.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.repo.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return &SessionDetail{InterviewSession: session, Turns: turns}, nil
}

// GenerateQuestion asks the model for the next question at the session's
// current topic and difficulty and records it as a new turn.
func (s *Service) GenerateQuestion(ctx context.Context, sessionID string) (*Question, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.repo.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}

	previous := make([]string, 0, len(turns))
	for _, t := range turns {
		previous = append(previous, t.QuestionText)
	}

	text, err := s.model.Generate(ctx, questionPrompt(session, previous))
	if err != nil {
		s.logger.Error("Question generation failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("generate question: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("generate question: empty model output: %w", domain.ErrUpstreamUnavailable)
	}

	turn, err := s.repo.AppendTurn(ctx, sessionID, text)
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	s.logger.Info("Generated question",
		"session_id", sessionID,
		"question_number", turn.QuestionNumber,
		"preview", preview(text, 80))
	return &Question{
		SessionID:      sessionID,
		QuestionNumber: turn.QuestionNumber,
		QuestionText:   turn.QuestionText,
	}, nil
}

// EvaluateAnswer grades answer against the session's latest unevaluated turn
// and applies the adaptive topic and difficulty update.
func (s *Service) EvaluateAnswer(ctx context.Context, sessionID, answer string) (*EvaluationResult, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("answer is required: %w", domain.ErrInvalidInput)
	}
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	turn, err := s.repo.LatestTurn(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if turn.Evaluated() {
		return nil, fmt.Errorf("no unanswered question for session %s: %w", sessionID, domain.ErrNotFound)
	}

	raw, err := s.model.Generate(ctx, evaluationPrompt(turn.QuestionText, answer))
	if err != nil {
		s.logger.Error("Evaluation failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("evaluate answer: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	eval, err := parseEvaluation(raw)
	if err != nil {
		s.logger.Error("Evaluation response rejected", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("evaluate answer: %w: %v", domain.ErrUpstreamUnavailable, err)
	}

	if err := s.repo.RecordEvaluation(ctx, sessionID, turn.ID, answer, *eval); err != nil {
		return nil, fmt.Errorf("record evaluation: %w", err)
	}

	s.logger.Info("Evaluated answer",
		"session_id", sessionID,
		"question_number", turn.QuestionNumber,
		"evaluation", eval.Verdict,
		"next_difficulty", eval.NextDifficulty)
	return &EvaluationResult{SessionID: sessionID, Evaluation: *eval}, nil
}

// Summarize produces the final report. The score is computed locally; the
// model only writes the narrative fields.
func (s *Service) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.repo.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	transcript := domain.Transcript(turns)

	raw, err := s.model.Generate(ctx, summaryPrompt(session, transcript))
	if err != nil {
		s.logger.Error("Summary generation failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("summarize: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	var narrative struct {
		Strengths           string `json:"strengths"`
		AreasForImprovement string `json:"areas_for_improvement"`
	}
	if err := llm.DecodeJSON(raw, &narrative); err != nil {
		s.logger.Error("Summary response rejected", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("summarize: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(narrative.Strengths) == "" || strings.TrimSpace(narrative.AreasForImprovement) == "" {
		return nil, fmt.Errorf("summarize: missing narrative fields: %w", domain.ErrUpstreamUnavailable)
	}

	return &Summary{
		Score:               session.Score(),
		Strengths:           narrative.Strengths,
		AreasForImprovement: narrative.AreasForImprovement,
		FullTranscript:      transcript,
	}, nil
}

// parseEvaluation validates the model's evaluation object. The difficulty is
// normalised; the verdict must match exactly.
func parseEvaluation(raw string) (*domain.Evaluation, error) {
	var payload struct {
		Evaluation     string `json:"evaluation"`
		Feedback       string `json:"feedback"`
		NextTopic      string `json:"next_topic"`
		NextDifficulty string `json:"next_difficulty"`
	}
	if err := llm.DecodeJSON(raw, &payload); err != nil {
		return nil, err
	}

	verdict := domain.Verdict(strings.TrimSpace(payload.Evaluation))
	if !verdict.Valid() {
		return nil, fmt.Errorf("unknown evaluation %q", payload.Evaluation)
	}
	difficulty, ok := domain.ParseDifficulty(payload.NextDifficulty)
	if !ok {
		return nil, fmt.Errorf("unknown difficulty %q", payload.NextDifficulty)
	}
	feedback := strings.TrimSpace(payload.Feedback)
	topic := strings.TrimSpace(payload.NextTopic)
	if feedback == "" || topic == "" {
		return nil, fmt.Errorf("feedback and next_topic are required")
	}

	return &domain.Evaluation{
		Verdict:        verdict,
		Feedback:       feedback,
		NextTopic:      topic,
		NextDifficulty: difficulty,
	}, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
