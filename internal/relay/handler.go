package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/excel-interviewer/internal/api"
	"github.com/ashureev/excel-interviewer/internal/identity"
	"github.com/ashureev/excel-interviewer/internal/observability"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

// ChatMessageInput is the body of a chat message.
type ChatMessageInput struct {
	Content   string `json:"content"`
	ContextID string `json:"context_id,omitempty"`
}

// Handler serves the chat endpoints.
type Handler struct {
	registry       *Registry
	poller         *Poller
	limiter        *RateLimiter
	conns          *ConnManager
	maxBodyBytes   int64
	originPatterns []string
}

// NewHandler creates a relay handler. originPatterns restricts WebSocket
// origins; "*" allows any.
func NewHandler(registry *Registry, poller *Poller, limiter *RateLimiter, conns *ConnManager, maxBodyBytes int64, originPatterns []string) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &Handler{
		registry:       registry,
		poller:         poller,
		limiter:        limiter,
		conns:          conns,
		maxBodyBytes:   maxBodyBytes,
		originPatterns: originPatterns,
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/chats/{agent_id}", func(r chi.Router) {
		r.Post("/messages", h.HandleMessage)
		r.Get("/ws", h.HandleWebSocket)
	})
}

// HandleMessage handles POST /api/v1/chats/{agent_id}/messages and streams
// the agent's progress as server-sent events.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	agentID := chi.URLParam(r, "agent_id")
	userID := identity.UserIDFromContext(r.Context())

	if !h.registry.Known(agentID) {
		api.Error(w, http.StatusNotFound, "Unknown agent: "+agentID)
		return
	}
	if !h.limiter.Allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var in ChatMessageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	contextID := r.URL.Query().Get("context_id")
	if contextID == "" {
		contextID = in.ContextID
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	logger.Info("Relaying chat message", "agent_id", agentID, "context_id", contextID, "user_id", userID, "message_length", len(in.Content))

	for ev := range h.events(r.Context(), agentID, in.Content, contextID, userID) {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Warn("failed to marshal relay event", "error", err)
			return
		}
		if err := writeSSE(w, ev.Type, string(data)); err != nil {
			logger.Warn("failed to write SSE event", "error", err)
			return
		}
		flusher.Flush()
	}
}

// HandleWebSocket handles GET /api/v1/chats/{agent_id}/ws. Each client frame
// is a ChatMessageInput; the server answers with the same events the SSE
// endpoint produces. The context id of a finished exchange carries over to
// the next message when the client omits it.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	agentID := chi.URLParam(r, "agent_id")
	userID := identity.UserIDFromContext(r.Context())
	tabID := identity.SessionIDFromContext(r.Context())

	if !h.registry.Known(agentID) {
		api.Error(w, http.StatusNotFound, "Unknown agent: "+agentID)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.conns.Register(userID, tabID, ws)
	defer h.conns.Unregister(userID, tabID, ws)

	ctx := r.Context()
	contextID := r.URL.Query().Get("context_id")
	for {
		var in ChatMessageInput
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF) || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}
		if in.ContextID != "" {
			contextID = in.ContextID
		}
		if strings.TrimSpace(in.Content) == "" {
			if err := wsjson.Write(ctx, ws, Event{Type: EventError, Content: "content is required", ContextID: contextID}); err != nil {
				return
			}
			continue
		}
		if !h.limiter.Allow(userID) {
			if err := wsjson.Write(ctx, ws, Event{Type: EventError, Content: "rate limit exceeded", ContextID: contextID}); err != nil {
				return
			}
			continue
		}

		for ev := range h.events(ctx, agentID, in.Content, contextID, userID) {
			contextID = ev.ContextID
			if err := wsjson.Write(ctx, ws, ev); err != nil {
				logger.Debug("WebSocket write failed", "error", err, "user_id", userID)
				return
			}
		}
	}
}

// events resolves the agent client and streams the exchange. A client that
// cannot be opened yields a single error event.
func (h *Handler) events(ctx context.Context, agentID, content, contextID, userID string) iter.Seq[Event] {
	client, err := h.registry.Client(ctx, agentID)
	if err != nil {
		observability.FromContext(ctx).Error("Failed to open agent client", "agent_id", agentID, "error", err)
		if contextID == "" {
			contextID = NewContextID()
		}
		return func(yield func(Event) bool) {
			yield(Event{Type: EventError, Content: TransportText, ContextID: contextID})
		}
	}
	return h.poller.Stream(ctx, client, content, contextID, userID)
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
