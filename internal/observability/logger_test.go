package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestFromContextWithoutRequestID(t *testing.T) {
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Fatal("expected default logger when no request id is present")
	}
}

func TestFromContextWithRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	if got := FromContext(ctx); got == slog.Default() {
		t.Fatal("expected annotated logger")
	}
}
