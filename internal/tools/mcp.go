package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	mcpClientName    = "expensecat"
	mcpClientVersion = "1.0.0"
)

// ErrNotInitialized is returned when tools are listed or called before Initialize.
var ErrNotInitialized = errors.New("mcp: client not initialized")

// MCPClient talks to a single MCP server over Streamable HTTP.
type MCPClient struct {
	url     string
	secret  string
	timeout time.Duration

	mu      sync.Mutex
	session *client.Client
}

// MCPToolInfo is one entry of a tools/list reply.
type MCPToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// NewMCPClient creates a client for the MCP server at url, authenticating with a bearer secret.
func NewMCPClient(url, secret string, timeout time.Duration) *MCPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MCPClient{url: url, secret: secret, timeout: timeout}
}

// Initialize performs the MCP handshake. It must be called before listing or calling tools.
// Calling it again replaces the session.
func (c *MCPClient) Initialize(ctx context.Context) error {
	session, err := client.NewStreamableHttpClient(c.url,
		transport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer " + c.secret}),
		transport.WithHTTPTimeout(c.timeout),
	)
	if err != nil {
		return fmt.Errorf("mcp client: %w", err)
	}
	if err := session.Start(ctx); err != nil {
		_ = session.Close()
		return fmt.Errorf("mcp start: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: mcpClientName, Version: mcpClientVersion}
	if _, err := session.Initialize(ctx, req); err != nil {
		_ = session.Close()
		return fmt.Errorf("mcp initialize: %w", err)
	}

	c.mu.Lock()
	prev := c.session
	c.session = session
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Close ends the session, if any.
func (c *MCPClient) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

func (c *MCPClient) current() (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, ErrNotInitialized
	}
	return c.session, nil
}

// ListTools returns the tools advertised by the server.
func (c *MCPClient) ListTools(ctx context.Context) ([]MCPToolInfo, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	res, err := session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp tools/list: %w", err)
	}
	infos := make([]MCPToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		infos = append(infos, MCPToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaMap(t.InputSchema),
		})
	}
	return infos, nil
}

// schemaMap turns the advertised input schema into the provider's JSON-schema map.
// A schema without a type yields nil.
func schemaMap(s mcp.ToolInputSchema) map[string]any {
	if s.Type == "" {
		return nil
	}
	props := s.Properties
	if props == nil {
		props = map[string]any{}
	}
	out := map[string]any{"type": s.Type, "properties": props}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// CallTool invokes a tool and returns the concatenated text content of the reply.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	session, err := c.current()
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := session.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp tools/call %s: %w", name, err)
	}

	var sb strings.Builder
	for _, part := range res.Content {
		switch tc := part.(type) {
		case mcp.TextContent:
			sb.WriteString(tc.Text)
		case *mcp.TextContent:
			sb.WriteString(tc.Text)
		}
	}
	text := sb.String()
	if res.IsError {
		return text, fmt.Errorf("tool %s reported an error: %s", name, text)
	}
	return text, nil
}

// RegisterTools lists the server's tools and registers each one into reg.
func (c *MCPClient) RegisterTools(ctx context.Context, reg *Registry) (int, error) {
	infos, err := c.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	for _, info := range infos {
		reg.Register(&RemoteTool{client: c, info: info})
	}
	return len(infos), nil
}

// RemoteTool adapts one MCP server tool to the Tool interface.
type RemoteTool struct {
	client *MCPClient
	info   MCPToolInfo
}

func (t *RemoteTool) Name() string        { return t.info.Name }
func (t *RemoteTool) Description() string { return t.info.Description }

func (t *RemoteTool) Parameters() map[string]any {
	if t.info.InputSchema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return t.info.InputSchema
}

func (t *RemoteTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	return t.client.CallTool(ctx, t.info.Name, params)
}
