package etl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"etlpipe/internal/domain"
)

// ── Transformer ────────────────────────────────────────────
// Transformers derive a new frame from the previous one. They never
// drop rows and never modify their input.

// Transformer processes a whole frame.
type Transformer interface {
	Transform(*domain.Frame) (*domain.Frame, error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(*domain.Frame) (*domain.Frame, error)

func (f TransformerFunc) Transform(fr *domain.Frame) (*domain.Frame, error) { return f(fr) }

// ApplyTransformers runs a chain of transformers in order.
func ApplyTransformers(f *domain.Frame, ts []Transformer) (*domain.Frame, error) {
	for _, t := range ts {
		next, err := t.Transform(f)
		if err != nil {
			return nil, err
		}
		if next.Len() != f.Len() {
			return nil, fmt.Errorf("transform %T changed row count from %d to %d", t, f.Len(), next.Len())
		}
		f = next
	}
	return f, nil
}

// ── Built-in Transforms ────────────────────────────────────

// RoundTransform rounds a numeric column to Places decimals.
type RoundTransform struct {
	Field  string
	Places int
}

func (t *RoundTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	return mapNumeric(f, t.Field, t.Field, func(v float64) float64 {
		return Round(v, t.Places)
	})
}

// ParseNumberTransform turns formatted text like "1,234.5" into float64.
type ParseNumberTransform struct {
	Field string
}

func (t *ParseNumberTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	return mapNumeric(f, t.Field, t.Field, func(v float64) float64 { return v })
}

// ScaleTransform multiplies a column by Factor and rounds the result.
// TargetField defaults to Field (in-place).
type ScaleTransform struct {
	Field       string
	TargetField string
	Factor      float64
	Places      int
}

func (t *ScaleTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	target := t.TargetField
	if target == "" {
		target = t.Field
	}
	return mapNumeric(f, t.Field, target, func(v float64) float64 {
		return Round(v*t.Factor, t.Places)
	})
}

// CurrencyTarget is one output column of a currency conversion.
type CurrencyTarget struct {
	Currency string `json:"currency"`
	Field    string `json:"field"`
}

// CurrencyTransform appends one column per target holding value*rate.
type CurrencyTransform struct {
	Field   string
	Rates   RateTable
	Targets []CurrencyTarget
	Places  int
}

func (t *CurrencyTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	out := f
	for _, target := range t.Targets {
		rate, err := t.Rates.Rate(target.Currency)
		if err != nil {
			return nil, err
		}
		next, err := mapNumeric(out, t.Field, target.Field, func(v float64) float64 {
			return Round(v*rate, t.Places)
		})
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// RenameTransform renames columns in place.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	return f.Rename(t.Mapping)
}

// SelectTransform keeps only the specified fields, in that order.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	return f.Select(t.Fields...)
}

// DropTransform removes the specified fields.
type DropTransform struct {
	Fields []string
}

func (t *DropTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	return f.Drop(t.Fields...)
}

// TypeCastTransform converts a field's values to a target type.
type TypeCastTransform struct {
	Field    string
	CastType string // "number" | "integer" | "string"
}

func (t *TypeCastTransform) Transform(f *domain.Frame) (*domain.Frame, error) {
	col, ok := f.Column(t.Field)
	if !ok {
		return nil, fmt.Errorf("%w: type_cast: no column %q", domain.ErrSchemaMismatch, t.Field)
	}
	out := make([]any, len(col))
	for i, v := range col {
		if v == nil {
			continue
		}
		switch t.CastType {
		case "string":
			out[i] = formatScalar(v)
		case "number":
			n, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", t.Field, i, err)
			}
			out[i] = n
		case "integer":
			n, err := toInteger(v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", t.Field, i, err)
			}
			out[i] = n
		default:
			return nil, fmt.Errorf("type_cast: unknown cast type %q", t.CastType)
		}
	}
	return f.WithColumn(t.Field, out)
}

// ── Helpers ────────────────────────────────────────────────

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// mapNumeric reads source as numbers, applies fn and writes target.
// Missing cells stay missing.
func mapNumeric(f *domain.Frame, source, target string, fn func(float64) float64) (*domain.Frame, error) {
	col, ok := f.Column(source)
	if !ok {
		return nil, fmt.Errorf("%w: no column %q", domain.ErrSchemaMismatch, source)
	}
	out := make([]any, len(col))
	for i, v := range col {
		if v == nil {
			continue
		}
		n, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", source, i, err)
		}
		out[i] = fn(n)
	}
	return f.WithColumn(target, out)
}

// toFloat accepts numbers and numeric text with thousands separators.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case string:
		return ParseNumber(n)
	default:
		return 0, fmt.Errorf("%w: unsupported value %v (%T)", domain.ErrParseFailure, v, v)
	}
}

// ParseNumber strips thousands separators and parses a float.
func ParseNumber(s string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '_', ' ', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", domain.ErrParseFailure, s)
	}
	return f, nil
}

// ParseInteger parses s like ParseNumber and rejects values with a
// fractional part or outside the int64 range.
func ParseInteger(s string) (int64, error) {
	f, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	return wholeNumber(f, s)
}

func toInteger(v any) (int64, error) {
	if n, ok := v.(int64); ok {
		return n, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return wholeNumber(f, v)
}

func wholeNumber(f float64, raw any) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v is not an integer", domain.ErrParseFailure, raw)
	}
	return int64(f), nil
}

func formatScalar(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
