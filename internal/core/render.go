package core

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderOptions controls Render output.
type RenderOptions struct {
	MaxRows     int    // Rows to print; 0 prints all
	MissingText string // Text for missing cells (default "<NA>")
	Style       string // "light" (default), "ascii" or "markdown"
}

// Render pretty-prints t to w followed by a "(n rows)" line, where n is
// the table's full row count.
func Render(w io.Writer, t *Table, opts RenderOptions) error {
	if t.NumRows() == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}
	missing := opts.MissingText
	if missing == "" {
		missing = DefaultMissingText
	}
	shown := t
	if opts.MaxRows > 0 && opts.MaxRows < t.NumRows() {
		shown = t.Head(opts.MaxRows)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	header := make(table.Row, t.NumCols())
	for i, name := range t.ColumnNames() {
		header[i] = name
	}
	tw.AppendHeader(header)

	for i := range shown.NumRows() {
		row := make(table.Row, shown.NumCols())
		for j, v := range shown.Row(i) {
			if v.IsMissing() {
				row[j] = missing
			} else {
				row[j] = v.String()
			}
		}
		tw.AppendRow(row)
	}

	switch opts.Style {
	case "markdown":
		tw.RenderMarkdown()
	case "ascii":
		tw.SetStyle(table.StyleDefault)
		tw.Render()
	default:
		tw.SetStyle(table.StyleLight)
		tw.Render()
	}

	_, err := fmt.Fprintf(w, "(%d rows)\n", t.NumRows())
	return err
}
