package sources

import (
	"fmt"
	"strconv"
	"strings"

	"etlpipe/internal/domain"
)

// frameFromText builds a frame from raw text cells, inferring each
// column's kind: all-integer, else all-numeric, else text.
// Empty cells are missing values.
func frameFromText(names []string, rows [][]string) (*domain.Frame, error) {
	cols := make([][]any, len(names))
	for c := range names {
		cells := make([]string, len(rows))
		for r, row := range rows {
			if len(row) != len(names) {
				return nil, fmt.Errorf("%w: row %d has %d fields, want %d", domain.ErrSchemaMismatch, r+1, len(row), len(names))
			}
			cells[r] = row[c]
		}
		cols[c] = inferColumn(cells)
	}
	return domain.NewFrame(names, cols)
}

func inferColumn(cells []string) []any {
	out := make([]any, len(cells))

	allInt := true
	for _, s := range cells {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			allInt = false
			break
		}
	}
	if allInt {
		for i, s := range cells {
			if s = strings.TrimSpace(s); s != "" {
				out[i], _ = strconv.ParseInt(s, 10, 64)
			}
		}
		return out
	}

	allFloat := true
	for _, s := range cells {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allFloat = false
			break
		}
	}
	for i, s := range cells {
		trimmed := strings.TrimSpace(s)
		switch {
		case trimmed == "":
		case allFloat:
			out[i], _ = strconv.ParseFloat(trimmed, 64)
		default:
			out[i] = s
		}
	}
	return out
}

// parseKind converts one text cell to the declared kind.
func parseKind(s string, kind domain.Kind) (any, error) {
	s = strings.TrimSpace(s)
	switch kind {
	case domain.KindInteger:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Accept "2016.0" style integers.
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != float64(int64(f)) {
				return nil, fmt.Errorf("%w: %q is not an integer", domain.ErrParseFailure, s)
			}
			return int64(f), nil
		}
		return v, nil
	case domain.KindNumber:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", domain.ErrParseFailure, s)
		}
		return v, nil
	default:
		return s, nil
	}
}
