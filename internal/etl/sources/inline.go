package sources

import (
	"context"
	"fmt"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── Inline Source ───────────────────────────────────────────
// Rows written directly in the pipeline configuration.

type inlineSource struct{}

func init() { etl.RegisterSource(&inlineSource{}) }

type inlineConfig struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (s *inlineSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "inline",
		Label: "Inline Rows",
		ConfigFields: []etl.ConfigField{
			{Key: "columns", Label: "Columns", Type: "list", Required: true},
			{Key: "rows", Label: "Rows", Type: "list", Required: true, Help: "Array of row arrays in column order"},
		},
	}
}

func (s *inlineSource) Read(ctx context.Context, cfg etl.SourceConfig) (*domain.Frame, error) {
	var c inlineConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	if len(c.Columns) == 0 {
		return nil, fmt.Errorf("columns are required")
	}
	b, err := domain.NewBuilder(c.Columns...)
	if err != nil {
		return nil, err
	}
	for i, row := range c.Rows {
		if err := b.Append(row...); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return b.Frame(), nil
}
