// Excel Interviewer agent: A2A task server over JSON-RPC and gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"github.com/ashureev/excel-interviewer/internal/agent"
	"github.com/ashureev/excel-interviewer/internal/config"
	"github.com/ashureev/excel-interviewer/internal/llm"
	"github.com/ashureev/excel-interviewer/internal/middleware"
	"github.com/ashureev/excel-interviewer/internal/observability"
	"github.com/ashureev/excel-interviewer/internal/store"
	"github.com/ashureev/excel-interviewer/internal/tools"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

var version = "dev"

const (
	toolDialAttempts = 10
	toolDialBackoff  = 2 * time.Second
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
	logger := observability.New(cfg.LogLevel, "agent")

	slog.Info("Starting agent", "port", cfg.Agent.Port, "grpc_port", cfg.Agent.GRPCPort, "tools_url", cfg.Tools.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	instruction, err := agent.LoadInstruction("agent_prompt.yaml")
	if err != nil {
		slog.Error("Failed to load agent instruction", "error", err)
		os.Exit(1)
	}

	model, err := llm.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	toolClient, err := dialTools(ctx, cfg.Tools.URL, logger)
	if err != nil {
		slog.Error("Failed to connect to tool server", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := toolClient.Close(); closeErr != nil {
			slog.Warn("Failed to close tool client", "error", closeErr)
		}
	}()

	tasks := agent.NewTaskStore()
	executor := agent.NewExecutor(model, toolClient, repo, instruction, cfg.Agent.MaxSteps, logger)
	svc := agent.NewService(executor, tasks, logger)
	defer svc.Close()

	card := agent.NewAgentCard(cfg.Agent.PublicURL, "grpc://localhost:"+cfg.Agent.GRPCPort, version)
	rpcHandler := agent.NewHandler(svc, card, cfg.MaxRequestBodyBytes)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	rpcHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Agent.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             time.Minute,
			PermitWithoutStream: false,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	)
	a2a.RegisterAgentServiceServer(grpcServer, agent.NewGRPCServer(svc))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(a2a.GRPCServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", ":"+cfg.Agent.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "error", err)
		os.Exit(1)
	}

	agent.StartTTLWorker(ctx, tasks, repo, cfg.Agent.TaskTTL, cfg.Agent.ConversationTTL)

	go func() {
		slog.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			slog.Error("gRPC server failed", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr, "card", card.URL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	slog.Info("Server stopped successfully")
}

// dialTools connects to the tool server, retrying while it starts up.
func dialTools(ctx context.Context, url string, logger *slog.Logger) (*tools.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= toolDialAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := tools.Dial(dialCtx, url, version, logger)
		cancel()
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warn("Tool server not ready, retrying", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(toolDialBackoff):
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", toolDialAttempts, lastErr)
}
