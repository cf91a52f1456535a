package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCClient talks to an agent over the gRPC agent service.
type GRPCClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GRPCClientConfig holds configuration for the gRPC client.
type GRPCClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCClientConfig returns default configuration for addr.
func DefaultGRPCClientConfig(addr string) GRPCClientConfig {
	return GRPCClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGRPCClient connects to the agent at cfg.Address and waits until the
// connection is ready.
func NewGRPCClient(cfg GRPCClientConfig, logger *slog.Logger) (*GRPCClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent at %s: %w", cfg.Address, err)
	}

	// Fail fast on bad agent endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to agent over gRPC", "address", cfg.Address)
	return &GRPCClient{conn: conn, addr: cfg.Address, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// SendMessage invokes AgentService/SendMessage.
func (c *GRPCClient) SendMessage(ctx context.Context, msg a2a.Message) (*a2a.Task, error) {
	return c.invoke(ctx, a2a.GRPCMethodSendMessage, a2a.MessageSendParams{Message: msg})
}

// GetTask invokes AgentService/GetTask.
func (c *GRPCClient) GetTask(ctx context.Context, id string) (*a2a.Task, error) {
	return c.invoke(ctx, a2a.GRPCMethodGetTask, a2a.TaskIDParams{ID: id})
}

// CancelTask invokes AgentService/CancelTask.
func (c *GRPCClient) CancelTask(ctx context.Context, id string) (*a2a.Task, error) {
	return c.invoke(ctx, a2a.GRPCMethodCancelTask, a2a.TaskIDParams{ID: id})
}

// Close closes the gRPC connection.
func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("failed to close gRPC connection", "error", err)
		return err
	}
	return nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, params any) (*a2a.Task, error) {
	req, err := a2a.ToStruct(params)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, a2a.FromGRPCStatus(err))
	}
	var task a2a.Task
	if err := a2a.FromStruct(out, &task); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", method, err)
	}
	return &task, nil
}
