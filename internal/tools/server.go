package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names exposed to the agent.
const (
	ToolStartInterview  = "start_interview"
	ToolGetNextQuestion = "get_next_question"
	ToolEvaluateAnswer  = "evaluate_answer"
	ToolGetFinalSummary = "get_final_summary"
)

// Names lists the tools in the order they are used during an interview.
var Names = []string{ToolStartInterview, ToolGetNextQuestion, ToolEvaluateAnswer, ToolGetFinalSummary}

// Backend is the subset of BackendClient the tool handlers need.
type Backend interface {
	StartInterview(ctx context.Context, userID string) (json.RawMessage, error)
	NextQuestion(ctx context.Context, sessionID string) (json.RawMessage, error)
	EvaluateAnswer(ctx context.Context, sessionID, answer string) (json.RawMessage, error)
	FinalSummary(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// Server is the MCP facade over the backend. It holds no interview state.
type Server struct {
	backend Backend
	mcp     *server.MCPServer
	logger  *slog.Logger
}

// NewServer registers the four interview tools on a new MCP server.
func NewServer(backend Backend, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: backend,
		mcp: server.NewMCPServer("excel_interviewer_tools", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool(ToolStartInterview,
		mcp.WithDescription("Initializes a new interview session for a user and returns the session ID."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("A unique identifier for the candidate.")),
	), s.startInterview)

	s.mcp.AddTool(mcp.NewTool(ToolGetNextQuestion,
		mcp.WithDescription("Fetches the next adaptive question for the given interview session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The unique ID for the current interview session.")),
	), s.getNextQuestion)

	s.mcp.AddTool(mcp.NewTool(ToolEvaluateAnswer,
		mcp.WithDescription("Submits a candidate's answer to the backend for evaluation and feedback."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The ID of the current interview session.")),
		mcp.WithString("user_answer", mcp.Required(), mcp.Description("The candidate's full answer to the question.")),
	), s.evaluateAnswer)

	s.mcp.AddTool(mcp.NewTool(ToolGetFinalSummary,
		mcp.WithDescription("Gets the final, aggregated performance summary for a completed interview."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The ID of the completed interview session.")),
	), s.getFinalSummary)

	return s
}

// Handler returns the streamable HTTP transport for mounting at /mcp.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) startInterview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil || userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	return s.result(ToolStartInterview)(s.backend.StartInterview(ctx, userID))
}

func (s *Server) getNextQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireSessionID(req)
	if errResult != nil {
		return errResult, nil
	}
	return s.result(ToolGetNextQuestion)(s.backend.NextQuestion(ctx, sessionID))
}

func (s *Server) evaluateAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireSessionID(req)
	if errResult != nil {
		return errResult, nil
	}
	answer, err := req.RequireString("user_answer")
	if err != nil {
		return mcp.NewToolResultError("user_answer is required"), nil
	}
	return s.result(ToolEvaluateAnswer)(s.backend.EvaluateAnswer(ctx, sessionID, answer))
}

func (s *Server) getFinalSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireSessionID(req)
	if errResult != nil {
		return errResult, nil
	}
	return s.result(ToolGetFinalSummary)(s.backend.FinalSummary(ctx, sessionID))
}

// result turns a backend reply into tool output. Backend failures become
// tool-level errors so the agent sees the message instead of a protocol fault.
func (s *Server) result(tool string) func(json.RawMessage, error) (*mcp.CallToolResult, error) {
	return func(body json.RawMessage, err error) (*mcp.CallToolResult, error) {
		if err != nil {
			s.logger.Warn("Tool call failed", "tool", tool, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func requireSessionID(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	raw, err := req.RequireString("session_id")
	if err != nil {
		return "", mcp.NewToolResultError("session_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", mcp.NewToolResultError("session_id must be a valid UUID")
	}
	return id.String(), nil
}
