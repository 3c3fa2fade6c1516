package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"etlpipe/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for etlpipe.
// It exposes pipelines, run history and named connections to AI agents.
type Server struct {
	mcp     *server.MCPServer
	emitter service.EventEmitter

	etl      *service.ETLService
	database *service.DatabaseService

	// allowWrites lets execute_query run statements that modify data.
	allowWrites bool
}

// Deps holds the services the MCP server is built on.
type Deps struct {
	Emitter     service.EventEmitter
	ETL         *service.ETLService
	Database    *service.DatabaseService
	AllowWrites bool
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = service.LogEmitter{}
	}
	s := &Server{
		emitter:     emitter,
		etl:         deps.ETL,
		database:    deps.Database,
		allowWrites: deps.AllowWrites,
	}

	s.mcp = server.NewMCPServer(
		"etlpipe",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerETLTools()
	s.registerDatabaseTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	slog.Info("mcp: starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// emitToolCalled notifies listeners that an agent invoked a mutating tool.
func (s *Server) emitToolCalled(ctx context.Context, tool string, args map[string]any) {
	s.emitter.Emit(ctx, "mcp:tool-called", map[string]any{"tool": tool, "args": args})
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}
