// Package tools exposes the interview backend as MCP tools and provides the
// MCP client the agent uses to call them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const backendTimeout = 60 * time.Second

// ErrBackendUnreachable is returned when the backend cannot be contacted.
var ErrBackendUnreachable = errors.New("Could not connect to the interview service backend.") //nolint:staticcheck // surfaced verbatim to the agent

// BackendError is a non-2xx response from the backend.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	return "The interview service returned an error: " + e.Detail
}

// BackendClient calls the question/evaluation backend over HTTP.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBackendClient creates a client for the backend at baseURL.
func NewBackendClient(baseURL string, logger *slog.Logger) *BackendClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: backendTimeout},
		logger:     logger,
	}
}

// StartInterview calls POST /interviews.
func (c *BackendClient) StartInterview(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/interviews", map[string]string{"user_id": userID})
}

// NextQuestion calls POST /questions/generate.
func (c *BackendClient) NextQuestion(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/questions/generate?session_id="+url.QueryEscape(sessionID), nil)
}

// EvaluateAnswer calls POST /answers/evaluate.
func (c *BackendClient) EvaluateAnswer(ctx context.Context, sessionID, answer string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/answers/evaluate", map[string]string{
		"session_id": sessionID,
		"answer":     answer,
	})
}

// FinalSummary calls GET /interviews/{id}/summary.
func (c *BackendClient) FinalSummary(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/interviews/"+url.PathEscape(sessionID)+"/summary", nil)
}

func (c *BackendClient) do(ctx context.Context, method, endpoint string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode backend payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Backend connection error", "endpoint", endpoint, "error", err)
		return nil, ErrBackendUnreachable
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("Backend read error", "endpoint", endpoint, "error", err)
		return nil, ErrBackendUnreachable
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(data)
		c.logger.Error("Backend API error", "endpoint", endpoint, "status", resp.StatusCode, "detail", detail)
		return nil, &BackendError{Status: resp.StatusCode, Detail: detail}
	}
	if !json.Valid(data) {
		return nil, &BackendError{Status: resp.StatusCode, Detail: "invalid JSON response"}
	}
	return json.RawMessage(data), nil
}

// errorDetail prefers the backend's "detail" field and falls back to the raw body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}
