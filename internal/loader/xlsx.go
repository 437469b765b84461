package loader

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxRows iterates the rows of one worksheet. Cell text is the formatted
// value as shown in the spreadsheet.
type xlsxRows struct {
	f    *excelize.File
	rows *excelize.Rows
	line int
}

func newXLSXReader(r io.Reader, opts parseOptions) (rowReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheet := opts.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, errors.New("no sheets found in workbook")
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheet, err)
	}

	g, err := newGridReader(&xlsxRows{f: f, rows: rows}, opts, true)
	if err != nil {
		_ = rows.Close()
		_ = f.Close()
		return nil, err
	}
	return g, nil
}

func (x *xlsxRows) next() ([]string, int, error) {
	for x.rows.Next() {
		x.line++
		cols, err := x.rows.Columns()
		if err != nil {
			return nil, 0, err
		}
		// Spreadsheets commonly carry fully blank rows; CSV blank lines are
		// skipped the same way.
		if len(cols) == 0 {
			continue
		}
		return cols, x.line, nil
	}
	if err := x.rows.Error(); err != nil {
		return nil, 0, err
	}
	return nil, 0, io.EOF
}

func (x *xlsxRows) close() error {
	err := x.rows.Close()
	if cerr := x.f.Close(); err == nil {
		err = cerr
	}
	return err
}
