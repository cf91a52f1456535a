// Package observability provides the process logger.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5/middleware"
)

// New builds the JSON stdout logger used by every binary and installs it as
// the slog default.
func New(level slog.Level, component string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("component", component)
	slog.SetDefault(logger)
	return logger
}

// FromContext returns the default logger annotated with the request id that
// chi's RequestID middleware stored in ctx, if any.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return logger.With("request_id", reqID)
	}
	return logger
}
