package sources

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── Directory Source ────────────────────────────────────────
// Globs a directory for CSV, JSON-lines and XML files and stacks every
// file's rows into one frame. Excluded paths (usually the pipeline's own
// output) are skipped even when a pattern matches them.

type directorySource struct{}

func init() { etl.RegisterSource(&directorySource{}) }

type directoryConfig struct {
	Dir       string     `json:"dir"`
	Patterns  []string   `json:"patterns"`
	Exclude   []string   `json:"exclude"`
	Columns   []string   `json:"columns"`
	Delimiter string     `json:"delimiter"`
	RowTag    string     `json:"rowTag"`
	XMLFields []xmlField `json:"xmlFields"`
}

var defaultPatterns = []string{"*.csv", "*.json", "*.xml"}

func (s *directorySource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "directory",
		Label: "Directory of Files",
		ConfigFields: []etl.ConfigField{
			{Key: "dir", Label: "Directory", Type: "string", Default: ".", Help: "Directory to scan"},
			{Key: "patterns", Label: "Patterns", Type: "list", Default: strings.Join(defaultPatterns, ","), Help: "Glob patterns, processed in order"},
			{Key: "exclude", Label: "Exclude", Type: "list", Help: "Paths never read, e.g. the pipeline's CSV output"},
			{Key: "columns", Label: "Columns", Type: "list", Help: "Expected column set and output order"},
			{Key: "xmlFields", Label: "XML Fields", Type: "list", Help: "Field mapping for XML files; defaults to columns as text"},
			{Key: "rowTag", Label: "XML Row Tag", Type: "string"},
		},
	}
}

func (s *directorySource) Read(ctx context.Context, cfg etl.SourceConfig) (*domain.Frame, error) {
	var c directoryConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	return readDirectory(ctx, c)
}

func readDirectory(ctx context.Context, c directoryConfig) (*domain.Frame, error) {
	dir := c.Dir
	if dir == "" {
		dir = "."
	}
	patterns := c.Patterns
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	excluded := make(map[string]bool, len(c.Exclude))
	for _, p := range c.Exclude {
		excluded[absPath(p)] = true
	}

	var builder *domain.Builder
	if len(c.Columns) > 0 {
		b, err := domain.NewBuilder(c.Columns...)
		if err != nil {
			return nil, err
		}
		builder = b
	}

	seen := map[string]bool{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		slices.Sort(matches)

		for _, path := range matches {
			abs := absPath(path)
			if excluded[abs] || seen[abs] {
				continue
			}
			seen[abs] = true
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			frame, err := readFile(path, c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			slog.DebugContext(ctx, "sources: directory file read", "path", path, "rows", frame.Len())

			if builder == nil {
				b, err := domain.NewBuilder(frame.Columns()...)
				if err != nil {
					return nil, err
				}
				builder = b
			}
			if err := builder.AppendFrame(frame); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	if builder == nil {
		return domain.EmptyFrame()
	}
	return builder.Frame(), nil
}

// readFile picks the per-format reader by extension.
func readFile(path string, c directoryConfig) (*domain.Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSVFile(csvConfig{FilePath: path, Delimiter: c.Delimiter})
	case ".json", ".jsonl", ".ndjson":
		return readJSONFile(jsonConfig{FilePath: path})
	case ".xml":
		fields := c.XMLFields
		if len(fields) == 0 {
			for _, col := range c.Columns {
				fields = append(fields, xmlField{Name: col})
			}
		}
		return readXMLFile(xmlConfig{FilePath: path, RowTag: c.RowTag, Fields: fields})
	default:
		return nil, fmt.Errorf("%w: no reader for extension %q", domain.ErrSchemaMismatch, filepath.Ext(path))
	}
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
