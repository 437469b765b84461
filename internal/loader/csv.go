package loader

import (
	"encoding/csv"
	"errors"
	"io"
)

// csvRows reads delimited records. Quote errors and other per-record
// parse errors are reported as malformed rows.
type csvRows struct {
	r *csv.Reader
}

func newCSVReader(r io.Reader, opts parseOptions) (rowReader, error) {
	cr := csv.NewReader(r)
	cr.Comma = ','
	if opts.delimiter != 0 {
		cr.Comma = opts.delimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return newGridReader(&csvRows{r: cr}, opts, false)
}

func newTSVReader(r io.Reader, opts parseOptions) (rowReader, error) {
	if opts.delimiter == 0 {
		opts.delimiter = '\t'
	}
	return newCSVReader(r, opts)
}

func (c *csvRows) next() ([]string, int, error) {
	fields, err := c.r.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, 0, &malformedRowError{line: pe.StartLine, reason: pe.Err.Error(), data: fields}
		}
		return nil, 0, err
	}
	line, _ := c.r.FieldPos(0)
	return fields, line, nil
}

func (c *csvRows) close() error { return nil }
