// Package api provides the HTTP surface of the question/evaluation backend.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/ashureev/excel-interviewer/internal/observability"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response of the form {"detail": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes the mapped status with a stable,
// client-facing detail message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound, unavailable string) {
	status := StatusFor(err)
	logger := observability.FromContext(r.Context())

	var detail string
	switch status {
	case http.StatusBadRequest:
		detail = err.Error()
	case http.StatusNotFound:
		detail = notFound
	case http.StatusConflict:
		detail = "Concurrent update on this interview session; retry the request."
	case http.StatusServiceUnavailable:
		detail = unavailable
	default:
		detail = "Internal server error."
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Warn("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	Error(w, status, detail)
}
