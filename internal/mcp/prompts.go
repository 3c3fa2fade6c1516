package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("design_pipeline",
		mcp.WithPromptDescription("Guide through writing a new pipeline entry for etlpipe.json5"),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("ETL source type (e.g. csv_file, html_table, database)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("description",
			mcp.ArgumentDescription("What this pipeline does"),
			mcp.RequiredArgument(),
		),
	), s.handleDesignPipelinePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("investigate_run",
		mcp.WithPromptDescription("Explain why a pipeline run failed and propose a fix"),
		mcp.WithArgument("name",
			mcp.ArgumentDescription("Pipeline name"),
			mcp.RequiredArgument(),
		),
	), s.handleInvestigateRunPrompt)
}

func (s *Server) handleDesignPipelinePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceType := req.Params.Arguments["sourceType"]
	description := req.Params.Arguments["description"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Design a %s pipeline", sourceType),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Design an etlpipe pipeline: %s. Follow these steps:

1. Use list_etl_sources to read the configuration fields of the "%s" source
2. Use list_db_connections and introspect_database to pick a connection and a table name
3. Write the pipeline entry for the "pipelines" map of etlpipe.json5: source, transforms, sinks, connection and queries ("{table}" expands to the first table sink)
4. Once the user has saved the file, check the output with preview_pipeline before running it with run_pipeline

Prefer append mode for table sinks that accumulate history and replace mode for snapshots.`, description, sourceType),
				},
			},
		},
	}, nil
}

func (s *Server) handleInvestigateRunPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := req.Params.Arguments["name"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Investigate the last run of %s", name),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Investigate the most recent run of pipeline "%s". Follow these steps:

1. Use list_runs with name "%s" and limit 5 to find the latest runs
2. Read the phase and error of the failed run: extracting points at the source, transforming at the transform chain, loading at a sink, querying at a post-load query
3. Use preview_pipeline to check whether extraction and transforms work now
4. For loading failures in append mode, use introspect_database to compare the table's columns with the frame's columns

Summarize the cause and the smallest configuration change that fixes it.`, name, name),
				},
			},
		},
	}, nil
}
