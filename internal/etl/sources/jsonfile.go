package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads line-delimited JSON records (one object per line) or a single
// top-level array of objects. Columns follow first-seen key order.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

type jsonConfig struct {
	FilePath string `json:"filePath"`
	Lines    *bool  `json:"lines"`
}

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "string", Required: true, Help: "Path to the JSON file"},
			{Key: "lines", Label: "Line Delimited", Type: "bool", Default: "true", Help: "One record per line; false reads a top-level array"},
		},
	}
}

func (s *jsonFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (*domain.Frame, error) {
	var c jsonConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	return readJSONFile(c)
}

func readJSONFile(c jsonConfig) (*domain.Frame, error) {
	if c.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	f, err := os.Open(c.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open file: %w", domain.ErrSourceUnavailable, err)
	}
	defer f.Close()

	lines := c.Lines == nil || *c.Lines
	return parseJSONRecords(f, lines)
}

// jsonRecord keeps an object's keys in document order.
type jsonRecord struct {
	keys   []string
	values map[string]any
}

func parseJSONRecords(r io.Reader, lines bool) (*domain.Frame, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if !lines {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: parse json: %w", domain.ErrSchemaMismatch, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, fmt.Errorf("%w: expected a top-level array", domain.ErrSchemaMismatch)
		}
	}

	var records []jsonRecord
	for dec.More() {
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", domain.ErrSchemaMismatch, len(records)+1, err)
		}
		records = append(records, rec)
	}

	if !lines {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: parse json: %w", domain.ErrSchemaMismatch, err)
		}
	} else if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		// A stray closing delimiter or garbage after the last record.
		return nil, fmt.Errorf("%w: trailing data after record %d", domain.ErrSchemaMismatch, len(records))
	}

	var names []string
	seen := map[string]bool{}
	for _, rec := range records {
		for _, k := range rec.keys {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}

	b, err := domain.NewBuilder(names...)
	if err != nil {
		return nil, err
	}
	row := make([]any, len(names))
	for _, rec := range records {
		for i, n := range names {
			row[i] = rec.values[n]
		}
		if err := b.Append(row...); err != nil {
			return nil, err
		}
	}
	return b.Frame(), nil
}

// decodeObject reads one JSON object token by token.
func decodeObject(dec *json.Decoder) (jsonRecord, error) {
	rec := jsonRecord{values: map[string]any{}}

	tok, err := dec.Token()
	if err != nil {
		return rec, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return rec, fmt.Errorf("expected an object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return rec, err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return rec, err
		}
		v, err := jsonScalar(raw)
		if err != nil {
			return rec, fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := rec.values[key]; !dup {
			rec.keys = append(rec.keys, key)
		}
		rec.values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return rec, err
	}
	return rec, nil
}

// jsonScalar maps a raw value to a frame scalar. Nested values are kept
// as compact JSON text.
func jsonScalar(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case nil, string, bool:
		return domain.NormalizeValue(val)
	case float64:
		return domain.NormalizeValue(json.Number(strings.TrimSpace(string(raw))))
	default:
		compact, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(compact), nil
	}
}
