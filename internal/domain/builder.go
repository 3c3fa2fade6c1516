package domain

import (
	"fmt"
	"slices"
)

// Builder accumulates rows and produces a Frame once.
// Readers append row by row instead of concatenating frames repeatedly.
type Builder struct {
	names  []string
	lookup map[string]int
	cols   [][]any
	rows   int
}

// NewBuilder starts a builder for the given columns.
func NewBuilder(names ...string) (*Builder, error) {
	lookup, err := indexNames(names)
	if err != nil {
		return nil, err
	}
	return &Builder{
		names:  append([]string(nil), names...),
		lookup: lookup,
		cols:   make([][]any, len(names)),
	}, nil
}

// Columns returns the builder's column names.
func (b *Builder) Columns() []string { return append([]string{}, b.names...) }

// Len returns the number of rows appended so far.
func (b *Builder) Len() int { return b.rows }

// Append adds one row. The value count must equal the column count.
func (b *Builder) Append(values ...any) error {
	if len(values) != len(b.names) {
		return fmt.Errorf("%w: row has %d values, want %d", ErrSchemaMismatch, len(values), len(b.names))
	}
	for i, v := range values {
		nv, err := NormalizeValue(v)
		if err != nil {
			return fmt.Errorf("column %q: %w", b.names[i], err)
		}
		b.cols[i] = append(b.cols[i], nv)
	}
	b.rows++
	return nil
}

// AppendFrame stacks all rows of f, aligning columns by name.
// The column sets must be equal; order may differ.
func (b *Builder) AppendFrame(f *Frame) error {
	if !sameColumnSet(b.names, f.names) {
		return fmt.Errorf("%w: columns %v, want %v", ErrSchemaMismatch, f.names, b.names)
	}
	for i, name := range b.names {
		src := f.cols[f.lookup[name]]
		b.cols[i] = append(b.cols[i], src...)
	}
	b.rows += f.rows
	return nil
}

// Frame finalizes the accumulated rows. The builder must not be reused.
func (b *Builder) Frame() *Frame {
	f := &Frame{names: b.names, cols: b.cols, lookup: b.lookup, rows: b.rows}
	for i := range f.cols {
		if f.cols[i] == nil {
			f.cols[i] = []any{}
		}
	}
	b.cols = nil
	return f
}

// Stack concatenates frames row-wise using the first frame's column order.
func Stack(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return EmptyFrame()
	}
	b, err := NewBuilder(frames[0].names...)
	if err != nil {
		return nil, err
	}
	for _, f := range frames {
		if err := b.AppendFrame(f); err != nil {
			return nil, err
		}
	}
	return b.Frame(), nil
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
