package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"github.com/ashureev/excel-interviewer/internal/api"
	"github.com/ashureev/excel-interviewer/internal/observability"
	"github.com/go-chi/chi/v5"
)

// TaskService is the task API served over JSON-RPC and gRPC.
type TaskService interface {
	SendMessage(ctx context.Context, msg a2a.Message) (*a2a.Task, error)
	GetTask(ctx context.Context, id string) (*a2a.Task, error)
	CancelTask(ctx context.Context, id string) (*a2a.Task, error)
}

// Handler serves the JSON-RPC endpoint and the agent card.
type Handler struct {
	svc          TaskService
	card         a2a.AgentCard
	maxBodyBytes int64
}

// NewHandler creates an agent HTTP handler.
func NewHandler(svc TaskService, card a2a.AgentCard, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{svc: svc, card: card, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes registers the agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleRPC)
	r.Get("/.well-known/agent.json", h.HandleCard)
	r.Get("/.well-known/agent-card.json", h.HandleCard)
}

// HandleCard serves the agent card.
func (h *Handler) HandleCard(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, h.card)
}

// HandleRPC handles POST / JSON-RPC 2.0 requests. Protocol errors are
// reported in the response body with HTTP 200.
func (h *Handler) HandleRPC(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req a2a.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeRPC(w, nil, nil, &a2a.RPCError{Code: a2a.CodeParseError, Message: "Parse error"})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(w, req.ID, nil, &a2a.RPCError{Code: a2a.CodeInvalidRequest, Message: "Invalid Request"})
		return
	}

	result, err := h.dispatch(r.Context(), req)
	if err != nil {
		var rpcErr *a2a.RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = a2a.ErrorFor(err)
		}
		if rpcErr.Code == a2a.CodeInternalError {
			logger.Error("JSON-RPC call failed", "method", req.Method, "error", err)
		}
		writeRPC(w, req.ID, nil, rpcErr)
		return
	}
	writeRPC(w, req.ID, result, nil)
}

func (h *Handler) dispatch(ctx context.Context, req a2a.Request) (*a2a.Task, error) {
	switch req.Method {
	case a2a.MethodSendMessage:
		var params a2a.MessageSendParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.svc.SendMessage(ctx, params.Message)
	case a2a.MethodGetTask, a2a.MethodCancelTask:
		var params a2a.TaskIDParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if strings.TrimSpace(params.ID) == "" {
			return nil, fmt.Errorf("%w: id is required", a2a.ErrInvalidParams)
		}
		if req.Method == a2a.MethodGetTask {
			return h.svc.GetTask(ctx, params.ID)
		}
		return h.svc.CancelTask(ctx, params.ID)
	default:
		return nil, &a2a.RPCError{Code: a2a.CodeMethodNotFound, Message: "Method not found: " + req.Method}
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: params are required", a2a.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", a2a.ErrInvalidParams, err)
	}
	return nil
}

func writeRPC(w http.ResponseWriter, id json.RawMessage, result *a2a.Task, rpcErr *a2a.RPCError) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	resp := a2a.Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			slog.Error("Failed to encode task", "error", err)
			resp.Error = &a2a.RPCError{Code: a2a.CodeInternalError, Message: "Internal error"}
		} else {
			resp.Result = raw
		}
	}
	api.JSON(w, http.StatusOK, resp)
}

// NewAgentCard describes the interviewer agent. grpcURL may be empty.
func NewAgentCard(publicURL, grpcURL, version string) a2a.AgentCard {
	card := a2a.AgentCard{
		Name:               "AI Excel Interviewer",
		Description:        "An adaptive agent that conducts technical interviews for Excel skills.",
		URL:                publicURL,
		Version:            version,
		ProtocolVersion:    "0.3.0",
		PreferredTransport: "JSONRPC",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/markdown"},
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		Skills: []a2a.AgentSkill{{
			ID:   "conduct_excel_interview",
			Name: "Adaptive Excel Skills Interview",
			Description: "Conducts a dynamic, conversational mock interview to assess a " +
				"candidate's Excel proficiency, adjusting difficulty based on performance.",
			Tags:     []string{"excel", "interview", "assessment", "hr", "recruiting"},
			Examples: []string{"Start my Excel interview", "I'm ready to begin the assessment."},
		}},
	}
	if grpcURL != "" {
		card.AdditionalInterfaces = []a2a.AgentInterface{
			{URL: publicURL, Transport: "JSONRPC"},
			{URL: grpcURL, Transport: "GRPC"},
		}
	}
	return card
}
