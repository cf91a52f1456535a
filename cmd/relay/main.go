// Excel Interviewer relay: browser-facing chat streaming over SSE and WebSocket.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/excel-interviewer/internal/config"
	"github.com/ashureev/excel-interviewer/internal/identity"
	"github.com/ashureev/excel-interviewer/internal/middleware"
	"github.com/ashureev/excel-interviewer/internal/observability"
	"github.com/ashureev/excel-interviewer/internal/relay"
	"github.com/ashureev/excel-interviewer/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.New(cfg.LogLevel, "relay")

	slog.Info("Starting relay", "port", cfg.Relay.Port, "agents", len(cfg.Relay.Agents), "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := relay.NewRegistry(cfg.Relay.Agents, logger)
	defer registry.Close()

	limiter := relay.NewRateLimiter(cfg.Relay.RateLimit, cfg.Relay.RateLimitWindow)
	limiter.StartEviction(ctx)

	conns := relay.NewConnManager()
	poller := relay.NewPoller(cfg.Relay.PollInterval, cfg.Relay.MaxPolls, logger)
	chatHandler := relay.NewHandler(registry, poller, limiter, conns, cfg.MaxRequestBodyBytes, cfg.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	chatHandler.RegisterRoutes(r)

	// Built-in chat page (SPA catch-all).
	r.Handle("/*", web.Handler())

	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Relay.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...", "open_chats", conns.Count())
	conns.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
