package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// renderFrame prints a frame with its values formatted the way the CSV sink
// writes them.
func renderFrame(w io.Writer, f *domain.Frame) {
	t := newTable(w)
	header := table.Row{}
	for _, name := range f.Columns() {
		header = append(header, name)
	}
	t.AppendHeader(header)
	for _, row := range f.Rows() {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = etl.FormatCSVValue(v)
		}
		t.AppendRow(r)
	}
	t.Render()
}
