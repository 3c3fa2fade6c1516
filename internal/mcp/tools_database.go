package mcpserver

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_db_connections",
		mcp.WithDescription("List the named database connections pipelines can load into"),
	), s.handleListDBConnections)

	s.mcp.AddTool(mcp.NewTool("introspect_database",
		mcp.WithDescription("Get schema information (tables and columns) of a database connection"),
		mcp.WithString("connection", mcp.Description("Connection name"), mcp.Required()),
	), s.handleIntrospectDatabase)

	s.mcp.AddTool(mcp.NewTool("execute_query",
		mcp.WithDescription("Run a query against a named connection. Only single read statements run unless the server was started with writes allowed."),
		mcp.WithString("connection", mcp.Description("Connection name"), mcp.Required()),
		mcp.WithString("query", mcp.Description("SQL query to execute"), mcp.Required()),
		mcp.WithNumber("fetchSize", mcp.Description("Number of rows to return (default 100)")),
	), s.handleExecuteQuery)
}

type connectionSummary struct {
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	Host     string `json:"host,omitempty"`
	Database string `json:"database,omitempty"`
}

func (s *Server) handleListDBConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns := s.database.ListConnections()
	out := make([]connectionSummary, 0, len(conns))
	for name, c := range conns {
		out = append(out, connectionSummary{Name: name, Driver: string(c.Driver), Host: c.Host, Database: c.Database})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return jsonResult(out)
}

func (s *Server) handleIntrospectDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conn := req.GetString("connection", "")
	if conn == "" {
		return nil, fmt.Errorf("connection is required")
	}
	schema, err := s.database.Introspect(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	return jsonResult(schema)
}

func (s *Server) handleExecuteQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	conn, _ := args["connection"].(string)
	query, _ := args["query"].(string)
	fetchSize := int(getFloat(args, "fetchSize", 100))

	if conn == "" || query == "" {
		return nil, fmt.Errorf("connection and query are required")
	}
	readOnly, err := s.database.ReadOnly(conn, query)
	if err != nil {
		return nil, err
	}
	if !readOnly {
		if !s.allowWrites {
			return textResult(fmt.Sprintf("Write query refused: %s", truncate(query, 100))), nil
		}
		s.emitToolCalled(ctx, "execute_query", args)
	}

	frame, err := s.database.Query(ctx, conn, query)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"totalRows": frame.Len(),
		"frame":     frame.Head(fetchSize),
	})
}
