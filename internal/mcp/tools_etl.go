package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"etlpipe/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerETLTools() {
	s.mcp.AddTool(mcp.NewTool("list_pipelines",
		mcp.WithDescription("List configured ETL pipelines with their source, sinks, trigger and last run"),
	), s.handleListPipelines)

	s.mcp.AddTool(mcp.NewTool("list_etl_sources",
		mcp.WithDescription("List available ETL source types with their configuration schemas"),
	), s.handleListETLSources)

	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("Run a pipeline end to end: extract, transform, load, then run its queries. Table sinks in replace mode overwrite existing data."),
		mcp.WithString("name", mcp.Description("Pipeline name (use list_pipelines)"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunPipeline)

	s.mcp.AddTool(mcp.NewTool("preview_pipeline",
		mcp.WithDescription("Extract and transform the first rows of a pipeline without loading anything"),
		mcp.WithString("name", mcp.Description("Pipeline name"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Rows to return (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePreviewPipeline)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent pipeline runs, newest first"),
		mcp.WithString("name", mcp.Description("Pipeline name (optional, all pipelines when empty)")),
		mcp.WithNumber("limit", mcp.Description("Number of runs (default 20)")),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get one recorded run with the results of its post-load queries"),
		mcp.WithString("runId", mcp.Description("Run ID"), mcp.Required()),
	), s.handleGetRun)
}

func (s *Server) handleListPipelines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipelines, err := s.etl.ListPipelines()
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	return jsonResult(pipelines)
}

func (s *Server) handleListETLSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.etl.ListSources())
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	s.emitToolCalled(ctx, "run_pipeline", req.GetArguments())

	result, err := s.etl.RunPipeline(ctx, name)
	if errors.Is(err, service.ErrAlreadyRunning) {
		return textResult(fmt.Sprintf("Pipeline %s is already running", name)), nil
	}
	if result == nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	// A failed run still has a result worth showing: the phase it stopped at.
	return jsonResult(result)
}

func (s *Server) handlePreviewPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, _ := args["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	maxRows := int(getFloat(args, "maxRows", 20))

	frame, err := s.etl.Preview(ctx, name, maxRows)
	if err != nil {
		return nil, fmt.Errorf("preview pipeline: %w", err)
	}
	return jsonResult(frame)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, _ := args["name"].(string)
	limit := int(getFloat(args, "limit", 20))

	runs, err := s.etl.ListRunLogs(name, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return jsonResult(runs)
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("runId", "")
	if runID == "" {
		return nil, fmt.Errorf("runId is required")
	}
	detail, err := s.etl.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return jsonResult(detail)
}
