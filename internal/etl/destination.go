package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"etlpipe/internal/domain"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes a frame into a target system.

// SinkConfig describes one load target of a pipeline.
type SinkConfig struct {
	Type  string           `json:"type"` // "csv_file" | "table"
	Path  string           `json:"path,omitempty"`
	Index bool             `json:"index,omitempty"`
	Table string           `json:"table,omitempty"`
	Mode  domain.WriteMode `json:"mode,omitempty"`
}

// Label names the sink for logs.
func (s SinkConfig) Label() string {
	if s.Type == "table" {
		return "table:" + s.Table
	}
	return s.Type + ":" + s.Path
}

// Destination writes a frame and reports how many rows were written.
type Destination interface {
	Write(ctx context.Context, f *domain.Frame) (int, error)
}

// TableLoader is the part of a database connector a table sink needs.
type TableLoader interface {
	WriteTable(ctx context.Context, table string, f *domain.Frame, mode domain.WriteMode) (int, error)
}

// NewDestination builds the destination for a sink. conn may be nil when
// the pipeline has no table sinks.
func NewDestination(s SinkConfig, conn TableLoader) (Destination, error) {
	switch s.Type {
	case "csv_file":
		if s.Path == "" {
			return nil, fmt.Errorf("csv_file sink: path is required")
		}
		return &CSVFileWriter{Path: s.Path, IncludeIndex: s.Index}, nil
	case "table":
		if s.Table == "" {
			return nil, fmt.Errorf("table sink: table is required")
		}
		mode := s.Mode
		if mode == "" {
			mode = domain.WriteReplace
		}
		if !mode.Valid() {
			return nil, fmt.Errorf("table sink %q: unknown mode %q", s.Table, s.Mode)
		}
		if conn == nil {
			return nil, fmt.Errorf("table sink %q: pipeline has no connection", s.Table)
		}
		return &TableWriter{Conn: conn, Table: s.Table, Mode: mode}, nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", s.Type)
	}
}

// ── CSV Destination ────────────────────────────────────────

// CSVFileWriter overwrites a CSV file with the frame.
// IncludeIndex prepends an unnamed 0-based row index column.
type CSVFileWriter struct {
	Path         string
	IncludeIndex bool
}

func (w *CSVFileWriter) Write(ctx context.Context, f *domain.Frame) (int, error) {
	if dir := filepath.Dir(w.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("%w: create dir for %s: %w", domain.ErrSinkWrite, w.Path, err)
		}
	}
	out, err := os.Create(w.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", domain.ErrSinkWrite, w.Path, err)
	}
	defer out.Close()

	cw := csv.NewWriter(out)
	header := f.Columns()
	if w.IncludeIndex {
		header = append([]string{""}, header...)
	}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("%w: write header: %w", domain.ErrSinkWrite, err)
	}

	record := make([]string, len(header))
	for i := 0; i < f.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		offset := 0
		if w.IncludeIndex {
			record[0] = strconv.Itoa(i)
			offset = 1
		}
		for c, v := range f.Row(i) {
			record[c+offset] = FormatCSVValue(v)
		}
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("%w: write row %d: %w", domain.ErrSinkWrite, i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("%w: flush %s: %w", domain.ErrSinkWrite, w.Path, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("%w: close %s: %w", domain.ErrSinkWrite, w.Path, err)
	}
	return f.Len(), nil
}

// FormatCSVValue renders a cell. Floats always carry a decimal point so the
// column reads back as a number.
func FormatCSVValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		s := strconv.FormatFloat(n, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		return s
	default:
		return formatScalar(v)
	}
}

// ── Table Destination ──────────────────────────────────────

// TableWriter loads the frame into a relational table or collection.
type TableWriter struct {
	Conn  TableLoader
	Table string
	Mode  domain.WriteMode
}

func (w *TableWriter) Write(ctx context.Context, f *domain.Frame) (int, error) {
	return w.Conn.WriteTable(ctx, w.Table, f, w.Mode)
}
