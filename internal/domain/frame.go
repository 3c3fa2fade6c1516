package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ── Frame ──────────────────────────────────────────────────
// The tabular value every pipeline stage exchanges.
// Columns are ordered, uniquely named and always the same length.
// Cells hold string, int64, float64 or nil (missing).
//
// A Frame is never mutated after construction: derivations copy.

// Kind is the inferred scalar type of a column.
type Kind string

const (
	KindText    Kind = "text"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
)

// Frame is an immutable table of named columns.
type Frame struct {
	names  []string
	cols   [][]any
	lookup map[string]int
	rows   int
}

// NewFrame builds a frame from column names and per-column values.
// Values are normalized to the frame's scalar set.
func NewFrame(names []string, cols [][]any) (*Frame, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%w: %d column names for %d columns", ErrSchemaMismatch, len(names), len(cols))
	}
	lookup, err := indexNames(names)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		names:  append([]string(nil), names...),
		cols:   make([][]any, len(cols)),
		lookup: lookup,
	}
	for i, col := range cols {
		if i > 0 && len(col) != f.rows {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrSchemaMismatch, names[i], len(col), f.rows)
		}
		if i == 0 {
			f.rows = len(col)
		}
		normalized := make([]any, len(col))
		for j, v := range col {
			nv, err := NormalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", names[i], j, err)
			}
			normalized[j] = nv
		}
		f.cols[i] = normalized
	}
	return f, nil
}

// EmptyFrame returns a frame with the given columns and no rows.
func EmptyFrame(names ...string) (*Frame, error) {
	return NewFrame(names, make([][]any, len(names)))
}

func indexNames(names []string) (map[string]int, error) {
	lookup := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := lookup[n]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, n)
		}
		lookup[n] = i
	}
	return lookup, nil
}

// NormalizeValue maps Go scalars onto the frame's value set.
func NormalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case int64:
		return val, nil
	case float64:
		if math.IsNaN(val) {
			return nil, nil
		}
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint:
		return uintValue(uint64(val))
	case uint64:
		return uintValue(val)
	case float32:
		return float64(val), nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return string(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrParseFailure, val)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func uintValue(v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrParseFailure, v)
	}
	return int64(v), nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return append([]string{}, f.names...)
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.names) }

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.lookup[name]
	return ok
}

// Column returns a copy of a column's values.
func (f *Frame) Column(name string) ([]any, bool) {
	i, ok := f.lookup[name]
	if !ok {
		return nil, false
	}
	return append([]any(nil), f.cols[i]...), true
}

// Value returns one cell, or nil when the column does not exist.
func (f *Frame) Value(row int, name string) any {
	i, ok := f.lookup[name]
	if !ok || row < 0 || row >= f.rows {
		return nil
	}
	return f.cols[i][row]
}

// Row returns the values of row i in column order.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.cols))
	for c := range f.cols {
		out[c] = f.cols[c][i]
	}
	return out
}

// Rows returns every row in column order.
func (f *Frame) Rows() [][]any {
	out := make([][]any, f.rows)
	for i := range out {
		out[i] = f.Row(i)
	}
	return out
}

// Kind infers the column's kind: any string makes it text, any float
// makes it number, otherwise integer. All-nil columns are text.
func (f *Frame) Kind(name string) Kind {
	i, ok := f.lookup[name]
	if !ok {
		return KindText
	}
	return InferKind(f.cols[i])
}

// InferKind applies the Frame.Kind rules to a slice of normalized values.
func InferKind(values []any) Kind {
	kind := Kind("")
	for _, v := range values {
		switch v.(type) {
		case string:
			return KindText
		case float64:
			kind = KindNumber
		case int64:
			if kind == "" {
				kind = KindInteger
			}
		}
	}
	if kind == "" {
		return KindText
	}
	return kind
}

// ── Derivations ────────────────────────────────────────────

// WithColumn returns a new frame with the column added at the end, or
// replaced in place when the name already exists.
func (f *Frame) WithColumn(name string, values []any) (*Frame, error) {
	if len(values) != f.rows && len(f.names) > 0 {
		return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrSchemaMismatch, name, len(values), f.rows)
	}
	names := f.Columns()
	cols := append([][]any(nil), f.cols...)
	if i, ok := f.lookup[name]; ok {
		cols[i] = values
	} else {
		names = append(names, name)
		cols = append(cols, values)
	}
	return NewFrame(names, cols)
}

// Rename returns a new frame with columns renamed according to mapping.
// Column positions are preserved.
func (f *Frame) Rename(mapping map[string]string) (*Frame, error) {
	names := f.Columns()
	for from, to := range mapping {
		i, ok := f.lookup[from]
		if !ok {
			return nil, fmt.Errorf("%w: rename: no column %q", ErrSchemaMismatch, from)
		}
		names[i] = to
	}
	return NewFrame(names, f.cols)
}

// Select returns a new frame with only the named columns, in that order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([][]any, len(names))
	for i, n := range names {
		idx, ok := f.lookup[n]
		if !ok {
			return nil, fmt.Errorf("%w: select: no column %q", ErrSchemaMismatch, n)
		}
		cols[i] = f.cols[idx]
	}
	return NewFrame(names, cols)
}

// Drop returns a new frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		if !f.Has(n) {
			return nil, fmt.Errorf("%w: drop: no column %q", ErrSchemaMismatch, n)
		}
		drop[n] = true
	}
	var keep []string
	for _, n := range f.names {
		if !drop[n] {
			keep = append(keep, n)
		}
	}
	return f.Select(keep...)
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n < 0 || n >= f.rows {
		return f
	}
	cols := make([][]any, len(f.cols))
	for i, c := range f.cols {
		cols[i] = append([]any(nil), c[:n]...)
	}
	return &Frame{names: f.Columns(), cols: cols, lookup: f.lookup, rows: n}
}

// MarshalJSON encodes the frame as {"columns": [...], "rows": [[...]]}.
func (f *Frame) MarshalJSON() ([]byte, error) {
	rows := f.Rows()
	if rows == nil {
		rows = [][]any{}
	}
	return json.Marshal(struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}{Columns: f.Columns(), Rows: rows})
}

// UnmarshalJSON decodes the MarshalJSON form. Whole numbers come back as
// integers.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var wire struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return err
	}
	b, err := NewBuilder(wire.Columns...)
	if err != nil {
		return err
	}
	for _, row := range wire.Rows {
		if err := b.Append(row...); err != nil {
			return err
		}
	}
	*f = *b.Frame()
	return nil
}
