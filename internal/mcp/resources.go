package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	pipelinesURI = "etlpipe://pipelines"
	runURIPrefix = "etlpipe://runs/"
)

func (s *Server) registerResources() {
	// ── etlpipe://pipelines ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		pipelinesURI,
		"Configured Pipelines",
		mcp.WithMIMEType("application/json"),
	), s.handlePipelinesResource)

	// ── etlpipe://runs/{runId} ─────────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			runURIPrefix+"{runId}",
			"Pipeline Run",
		),
		s.handleRunResource,
	)
}

func (s *Server) handlePipelinesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	pipelines, err := s.etl.ListPipelines()
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(pipelines, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      pipelinesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRunResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	runID := strings.TrimPrefix(uri, runURIPrefix)
	if runID == uri || runID == "" || strings.Contains(runID, "/") {
		return nil, fmt.Errorf("could not extract runId from URI: %s", uri)
	}

	detail, err := s.etl.GetRun(runID)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(detail, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
