package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/excel-interviewer/internal/a2a"
)

const agentCardPath = "/.well-known/agent.json"

// JSONRPCClient talks to an agent over JSON-RPC 2.0 on HTTP.
type JSONRPCClient struct {
	endpoint string
	card     *a2a.AgentCard
	http     *http.Client
	nextID   atomic.Int64
}

// ResolveAgentCard fetches the agent card published under baseURL.
func ResolveAgentCard(ctx context.Context, httpClient *http.Client, baseURL string) (*a2a.AgentCard, error) {
	url := strings.TrimRight(baseURL, "/") + agentCardPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build agent card request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch agent card from %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch agent card from %s: status %d", url, resp.StatusCode)
	}
	var card a2a.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	return &card, nil
}

// NewJSONRPCClient resolves the agent card under baseURL and returns a client
// bound to the endpoint the card advertises.
func NewJSONRPCClient(ctx context.Context, baseURL string, httpClient *http.Client) (*JSONRPCClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	card, err := ResolveAgentCard(ctx, httpClient, baseURL)
	if err != nil {
		return nil, err
	}
	endpoint := card.URL
	if endpoint == "" {
		endpoint = baseURL
	}
	return &JSONRPCClient{endpoint: endpoint, card: card, http: httpClient}, nil
}

// Card returns the resolved agent card.
func (c *JSONRPCClient) Card() *a2a.AgentCard {
	return c.card
}

// SendMessage calls message/send.
func (c *JSONRPCClient) SendMessage(ctx context.Context, msg a2a.Message) (*a2a.Task, error) {
	return c.call(ctx, a2a.MethodSendMessage, a2a.MessageSendParams{Message: msg})
}

// GetTask calls tasks/get.
func (c *JSONRPCClient) GetTask(ctx context.Context, id string) (*a2a.Task, error) {
	return c.call(ctx, a2a.MethodGetTask, a2a.TaskIDParams{ID: id})
}

// CancelTask calls tasks/cancel.
func (c *JSONRPCClient) CancelTask(ctx context.Context, id string) (*a2a.Task, error) {
	return c.call(ctx, a2a.MethodCancelTask, a2a.TaskIDParams{ID: id})
}

// Close is a no-op; the HTTP client is shared.
func (c *JSONRPCClient) Close() error { return nil }

func (c *JSONRPCClient) call(ctx context.Context, method string, params any) (*a2a.Task, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	id, _ := json.Marshal(c.nextID.Add(1))
	body, err := json.Marshal(a2a.Request{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp a2a.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	var task a2a.Task
	if err := json.Unmarshal(rpcResp.Result, &task); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return &task, nil
}
