package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ashureev/excel-interviewer/internal/interview"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// InterviewService is the backend logic the handlers drive.
type InterviewService interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	GetSession(ctx context.Context, sessionID string) (*interview.SessionDetail, error)
	GenerateQuestion(ctx context.Context, sessionID string) (*interview.Question, error)
	EvaluateAnswer(ctx context.Context, sessionID, answer string) (*interview.EvaluationResult, error)
	Summarize(ctx context.Context, sessionID string) (*interview.Summary, error)
}

// Pinger reports datastore health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InterviewHandler serves the backend endpoints.
type InterviewHandler struct {
	svc          InterviewService
	db           Pinger
	maxBodyBytes int64
}

// NewInterviewHandler creates the backend handler.
func NewInterviewHandler(svc InterviewService, db Pinger, maxBodyBytes int64) *InterviewHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &InterviewHandler{svc: svc, db: db, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes registers the backend routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ready", h.Ready)
	r.Post("/interviews", h.StartInterview)
	r.Get("/interviews/{session_id}", h.GetInterview)
	r.Get("/interviews/{session_id}/summary", h.GetSummary)
	r.Post("/questions/generate", h.GenerateQuestion)
	r.Post("/answers/evaluate", h.EvaluateAnswer)
}

// Ready reports whether the datastore is reachable.
func (h *InterviewHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startInterviewRequest struct {
	UserID string `json:"user_id"`
}

// StartInterview creates a new session.
func (h *InterviewHandler) StartInterview(w http.ResponseWriter, r *http.Request) {
	var req startInterviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	id, err := h.svc.CreateSession(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, r, err, "Interview session not found.", "Interview service unavailable.")
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// GetInterview returns the session state and its turns.
func (h *InterviewHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, chi.URLParam(r, "session_id"))
	if !ok {
		return
	}
	detail, err := h.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, err, "Interview session not found.", "Interview service unavailable.")
		return
	}
	JSON(w, http.StatusOK, detail)
}

// GenerateQuestion produces the next question for ?session_id=.
func (h *InterviewHandler) GenerateQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}
	q, err := h.svc.GenerateQuestion(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, err, "Interview session not found.", "AI question service unavailable.")
		return
	}
	JSON(w, http.StatusOK, q)
}

type evaluateAnswerRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// EvaluateAnswer grades the answer to the session's current question.
func (h *InterviewHandler) EvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	var req evaluateAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	sessionID, ok := sessionIDParam(w, req.SessionID)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		Error(w, http.StatusBadRequest, "answer is required")
		return
	}
	result, err := h.svc.EvaluateAnswer(r.Context(), sessionID, req.Answer)
	if err != nil {
		writeServiceError(w, r, err, "Session or turn not found.", "AI evaluation service unavailable.")
		return
	}
	JSON(w, http.StatusOK, result)
}

// GetSummary returns the final interview report.
func (h *InterviewHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, chi.URLParam(r, "session_id"))
	if !ok {
		return
	}
	summary, err := h.svc.Summarize(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, err, "Interview session not found.", "AI summarization service unavailable.")
		return
	}
	JSON(w, http.StatusOK, summary)
}

func (h *InterviewHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// sessionIDParam validates and canonicalises a session id.
func sessionIDParam(w http.ResponseWriter, raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		Error(w, http.StatusBadRequest, "session_id must be a valid UUID")
		return "", false
	}
	return id.String(), true
}
