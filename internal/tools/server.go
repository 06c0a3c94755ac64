package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/sidecar-go/internal/protocol"
)

// Requester forwards tool calls to a connected session.
type Requester = protocol.Requester

// Server holds the tool registry and serves it over MCP.
//
// The registry is kept separately from mcp.Server so tools can be listed and
// invoked programmatically without a transport.
type Server struct {
	log     *slog.Logger
	name    string
	version string

	mu    sync.RWMutex
	tools map[string]*registeredTool
}

type registeredTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// NewServer creates a server exposing the request and lookup_location tools
// backed by requester.
func NewServer(log *slog.Logger, name, version string, requester Requester) *Server {
	s := &Server{
		log:     log.With("component", "tools"),
		name:    name,
		version: version,
		tools:   make(map[string]*registeredTool, 2),
	}

	s.AddTool(requestTool(), s.handleRequest(requester))
	s.AddTool(lookupLocationTool(), s.handleLookupLocation(requester))

	return s
}

// AddTool registers a tool, replacing any tool with the same name.
func (s *Server) AddTool(tool *mcp.Tool, handler mcp.ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
}

// Name returns the server name.
func (s *Server) Name() string {
	return s.name
}

// Version returns the server version.
func (s *Server) Version() string {
	return s.version
}

// ListTools returns the registered tools sorted by name.
func (s *Server) ListTools() []*mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*mcp.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		result = append(result, t.tool)
	}

	slices.SortFunc(result, func(a, b *mcp.Tool) int {
		return strings.Compare(a.Name, b.Name)
	})

	return result
}

// CallTool executes a tool by name. Unknown tools and handler failures are
// reported as error results, not Go errors.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	t, exists := s.tools[name]
	s.mu.RUnlock()

	if !exists {
		return ErrorResult("Tool not found: " + name), nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		//nolint:nilerr // the failure is reported in the result
		return ErrorResult("Failed to marshal input: " + err.Error()), nil
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: name, Arguments: raw},
	}

	result, err := t.handler(ctx, req)
	if err != nil {
		//nolint:nilerr // the failure is reported in the result
		return ErrorResult("Tool execution failed: " + err.Error()), nil
	}

	return result, nil
}

// Serve runs an MCP server with the registered tools over transport until the
// host disconnects or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	server := mcp.NewServer(&mcp.Implementation{Name: s.name, Version: s.version}, nil)

	for _, tool := range s.ListTools() {
		s.mu.RLock()
		handler := s.tools[tool.Name].handler
		s.mu.RUnlock()

		server.AddTool(tool, handler)
	}

	s.log.Info("Serving MCP tools", "name", s.name, "version", s.version)

	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve mcp: %w", err)
	}

	return nil
}

func requestTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "request",
		Description: "Send a request of the given kind to the sidecar process and " +
			"return the response data as JSON.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"kind": {
					Type:        "string",
					Description: `Request kind, e.g. "location". Sent as <kind>_request.`,
				},
				"payload": {
					Type:        "object",
					Description: "Fields merged into the request message.",
				},
			},
			Required: []string{"kind"},
		},
	}
}

func lookupLocationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lookup_location",
		Description: "Geocode a place name or address and return its latitude and longitude.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: `Place to look up, e.g. "Tokyo Tower".`,
				},
			},
			Required: []string{"query"},
		},
	}
}

func (s *Server) handleRequest(requester Requester) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := ParseArguments(req)
		if err != nil {
			return nil, err
		}

		kind, _ := args["kind"].(string)
		if kind == "" {
			return ErrorResult("kind is required"), nil
		}

		var payload map[string]any

		switch p := args["payload"].(type) {
		case nil:
		case map[string]any:
			payload = p
		default:
			return ErrorResult(fmt.Sprintf("payload must be an object, got %T", p)), nil
		}

		resp, err := requester.Request(ctx, kind, payload)
		if err != nil {
			s.log.Warn("Tool request failed", "kind", kind, "error", err)

			return ErrorResult(err.Error()), nil
		}

		return JSONResult(resp.Data)
	}
}

func (s *Server) handleLookupLocation(requester Requester) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := ParseArguments(req)
		if err != nil {
			return nil, err
		}

		query, _ := args["query"].(string)

		loc, err := protocol.LookupLocation(ctx, requester, query)
		if err != nil {
			s.log.Warn("Location lookup failed", "query", query, "error", err)

			return ErrorResult(err.Error()), nil
		}

		return JSONResult(loc)
	}
}

// TextResult creates a CallToolResult with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// JSONResult creates a CallToolResult holding v rendered as JSON text.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	return TextResult(string(data)), nil
}

// ErrorResult creates a CallToolResult indicating an error.
func ErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

// ParseArguments unmarshals CallToolRequest arguments into a map.
func ParseArguments(req *mcp.CallToolRequest) (map[string]any, error) {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return make(map[string]any), nil
	}

	var args map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	return args, nil
}
