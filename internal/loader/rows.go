package loader

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabload/internal/core"
)

// DefaultHeaderSearchRows bounds how many leading rows FindHeader inspects.
const DefaultHeaderSearchRows = 20

var errEmptySource = errors.New("empty source: no header row")

// record is one parsed data row, aligned with the reader's header.
type record struct {
	line   int
	fields []string
	absent []bool // Per field: no value at all (JSON null or missing key). Nil when all present.
}

// malformedRowError marks a row that is skipped and counted.
type malformedRowError struct {
	line   int
	reason string
	data   []string
}

func (e *malformedRowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.line, e.reason)
}

// rowReader yields records from one decoded source.
// Next returns io.EOF at the end and *malformedRowError for a skippable row.
type rowReader interface {
	Header() []string
	Next() (record, error)
	ExtraFields() int
	Close() error
}

// parseOptions are the request options that affect parsing.
type parseOptions struct {
	delimiter        rune
	skipRows         int
	noHeader         bool
	findHeader       []string
	headerSearchRows int
	sheet            string
}

// rawRows is a source of unaligned string rows: CSV records or sheet rows.
type rawRows interface {
	// next returns the next row and its 1-based line number. A
	// *malformedRowError is skippable, io.EOF ends the rows.
	next() ([]string, int, error)
	close() error
}

// gridReader applies header handling and width checks to raw rows.
type gridReader struct {
	rows     rawRows
	header   []string
	pending  []pendingRow
	padShort bool // Pad short rows with empty cells instead of rejecting them
}

type pendingRow struct {
	fields []string
	line   int
}

func newGridReader(rows rawRows, opts parseOptions, padShort bool) (*gridReader, error) {
	g := &gridReader{rows: rows, padShort: padShort}
	if err := g.readHeader(opts); err != nil {
		return nil, err
	}
	return g, nil
}

// nextRaw returns the next row, skipping malformed rows. Used only while
// locating the header, where nothing is counted yet.
func (g *gridReader) nextRaw() ([]string, int, error) {
	for {
		fields, line, err := g.rows.next()
		var mr *malformedRowError
		if errors.As(err, &mr) {
			continue
		}
		return fields, line, err
	}
}

func (g *gridReader) readHeader(opts parseOptions) error {
	for range opts.skipRows {
		if _, _, err := g.nextRaw(); err != nil {
			if err == io.EOF {
				return errEmptySource
			}
			return err
		}
	}

	switch {
	case len(opts.findHeader) > 0:
		limit := opts.headerSearchRows
		if limit <= 0 {
			limit = DefaultHeaderSearchRows
		}
		for range limit {
			fields, _, err := g.nextRaw()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if equalHeaders(fields, opts.findHeader) {
				g.header = normalizeHeader(fields)
				return nil
			}
		}
		return fmt.Errorf("header not found in first %d rows (expected: %v)", limit, opts.findHeader)

	case opts.noHeader:
		fields, line, err := g.nextRaw()
		if err == io.EOF {
			return errEmptySource
		}
		if err != nil {
			return err
		}
		g.header = make([]string, len(fields))
		for i := range fields {
			g.header[i] = strconv.Itoa(i)
		}
		g.pending = append(g.pending, pendingRow{fields: fields, line: line})
		return nil

	default:
		fields, _, err := g.nextRaw()
		if err == io.EOF {
			return errEmptySource
		}
		if err != nil {
			return err
		}
		g.header = normalizeHeader(fields)
		return nil
	}
}

func (g *gridReader) Header() []string { return g.header }

func (g *gridReader) ExtraFields() int { return 0 }

func (g *gridReader) Next() (record, error) {
	var (
		fields []string
		line   int
	)
	if len(g.pending) > 0 {
		fields, line = g.pending[0].fields, g.pending[0].line
		g.pending = g.pending[1:]
	} else {
		var err error
		fields, line, err = g.rows.next()
		if err != nil {
			return record{}, err
		}
	}

	switch {
	case len(fields) == len(g.header):
	case len(fields) < len(g.header) && g.padShort:
		padded := make([]string, len(g.header))
		copy(padded, fields)
		fields = padded
	default:
		return record{}, &malformedRowError{
			line:   line,
			reason: fmt.Sprintf("expected %d fields, got %d", len(g.header), len(fields)),
			data:   fields,
		}
	}
	return record{line: line, fields: fields}, nil
}

func (g *gridReader) Close() error { return g.rows.close() }

// normalizeHeader makes column names usable: blank names become
// "Unnamed: i" and repeats get a ".n" suffix.
func normalizeHeader(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			n = fmt.Sprintf("Unnamed: %d", i)
		}
		name := n
		for k := 1; taken[name]; k++ {
			name = fmt.Sprintf("%s.%d", n, k)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// equalHeaders reports whether row starts with the wanted names, ignoring
// case and spreadsheet artifacts.
func equalHeaders(row, want []string) bool {
	if len(row) < len(want) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(core.CleanCell(row[i]), core.CleanCell(want[i])) {
			return false
		}
	}
	return true
}
