package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/ashureev/excel-interviewer/internal/llm"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Client is an MCP client bound to the interview tools.
type Client struct {
	mcp    *client.Client
	specs  []llm.ToolSpec
	logger *slog.Logger
}

// Dial connects to the MCP server at url, performs the handshake and loads
// the interview tools from tools/list.
func Dial(ctx context.Context, url, version string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("create MCP client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "excel-interviewer-agent", Version: version}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize MCP session: %w", err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("list MCP tools: %w", err)
	}

	specs := toolSpecs(listed.Tools)
	if len(specs) != len(Names) {
		_ = c.Close()
		return nil, fmt.Errorf("MCP server exposes %d of %d interview tools", len(specs), len(Names))
	}
	logger.Info("Connected to tool server", "url", url, "tools", len(specs))

	return &Client{mcp: c, specs: specs, logger: logger}, nil
}

// Tools returns the tool declarations for the model.
func (c *Client) Tools() []llm.ToolSpec {
	return c.specs
}

// Call invokes a tool and returns its text content. A tool-level error is
// returned as a Go error carrying the tool's message.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	if !slices.Contains(Names, name) {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	text := resultText(res)
	if res.IsError {
		if text == "" {
			text = "tool " + name + " failed"
		}
		return "", errors.New(text)
	}
	return text, nil
}

// Close terminates the MCP session.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// toolSpecs keeps only the interview tools and maps their input schemas.
func toolSpecs(listed []mcp.Tool) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(Names))
	for _, t := range listed {
		if !slices.Contains(Names, t.Name) {
			continue
		}
		spec := llm.ToolSpec{Name: t.Name, Description: t.Description}

		props := make([]string, 0, len(t.InputSchema.Properties))
		for name := range t.InputSchema.Properties {
			props = append(props, name)
		}
		sort.Strings(props)
		for _, name := range props {
			var desc string
			if m, ok := t.InputSchema.Properties[name].(map[string]any); ok {
				desc, _ = m["description"].(string)
			}
			spec.Params = append(spec.Params, llm.ToolParam{
				Name:        name,
				Description: desc,
				Required:    slices.Contains(t.InputSchema.Required, name),
			})
		}
		specs = append(specs, spec)
	}
	return specs
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
