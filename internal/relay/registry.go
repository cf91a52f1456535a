package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DialFunc opens a client for an agent URL.
type DialFunc func(ctx context.Context, url string) (AgentClient, error)

// Registry maps agent ids to lazily opened clients. URLs starting with
// grpc:// use the gRPC transport; everything else uses JSON-RPC.
type Registry struct {
	mu      sync.Mutex
	urls    map[string]string
	clients map[string]AgentClient
	dial    DialFunc
	logger  *slog.Logger
}

// NewRegistry creates a registry over the id to URL map.
func NewRegistry(agents map[string]string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: 60 * time.Second}
	r := &Registry{
		urls:    make(map[string]string, len(agents)),
		clients: make(map[string]AgentClient),
		logger:  logger,
	}
	for id, url := range agents {
		r.urls[id] = url
	}
	r.dial = func(ctx context.Context, url string) (AgentClient, error) {
		if addr, ok := strings.CutPrefix(url, "grpc://"); ok {
			return NewGRPCClient(DefaultGRPCClientConfig(addr), logger)
		}
		return NewJSONRPCClient(ctx, url, httpClient)
	}
	return r
}

// NewRegistryWithDialer creates a registry with a custom dialer.
func NewRegistryWithDialer(agents map[string]string, dial DialFunc, logger *slog.Logger) *Registry {
	r := NewRegistry(agents, logger)
	r.dial = dial
	return r
}

// Client returns the client for agentID, opening it on first use. A failed
// open is not cached.
func (r *Registry) Client(ctx context.Context, agentID string) (AgentClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[agentID]; ok {
		return c, nil
	}
	url, ok := r.urls[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	r.logger.Info("Initializing agent client", "agent_id", agentID, "url", url)
	c, err := r.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open client for %s: %w", agentID, err)
	}
	r.clients[agentID] = c
	return c, nil
}

// Known reports whether agentID is configured.
func (r *Registry) Known(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.urls[agentID]
	return ok
}

// Close closes every opened client.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to close agent client", "agent_id", id, "error", err)
		}
		delete(r.clients, id)
	}
}
