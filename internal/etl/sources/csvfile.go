package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads a local CSV file. With an explicit column list the file has no
// header row and every line is data.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

type csvConfig struct {
	FilePath    string   `json:"filePath"`
	Delimiter   string   `json:"delimiter"`
	Columns     []string `json:"columns"`
	IndexColumn bool     `json:"indexColumn"`
}

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "string", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "columns", Label: "Columns", Type: "list", Help: "Column names for a file without a header row"},
			{Key: "indexColumn", Label: "Index Column", Type: "bool", Default: "false", Help: "Drop the leading row-index column written by an indexed CSV sink"},
		},
	}
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (*domain.Frame, error) {
	var c csvConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	return readCSVFile(c)
}

func readCSVFile(c csvConfig) (*domain.Frame, error) {
	if c.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(c.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open file: %w", domain.ErrSourceUnavailable, err)
	}
	defer f.Close()

	return parseCSV(f, c)
}

func parseCSV(r io.Reader, c csvConfig) (*domain.Frame, error) {
	reader := csv.NewReader(r)
	if len(c.Delimiter) > 0 {
		reader.Comma = rune(c.Delimiter[0])
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	// Width is checked against the header below for a typed error.
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse csv: %w", domain.ErrSchemaMismatch, err)
	}

	var (
		headers []string
		rows    [][]string
	)
	if len(c.Columns) > 0 {
		headers = c.Columns
		rows = records
	} else {
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: empty csv file", domain.ErrSchemaMismatch)
		}
		headers = records[0]
		rows = records[1:]
	}

	if c.IndexColumn {
		if len(c.Columns) == 0 {
			headers = headers[1:]
		}
		trimmed := make([][]string, len(rows))
		for i, row := range rows {
			if len(row) == 0 {
				return nil, fmt.Errorf("%w: row %d has no index field", domain.ErrSchemaMismatch, i+1)
			}
			trimmed[i] = row[1:]
		}
		rows = trimmed
	}

	return frameFromText(headers, rows)
}
