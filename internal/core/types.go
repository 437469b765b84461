package core

import (
	"fmt"
	"io"
	"time"
)

// FieldType represents the semantic type declared for a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInteger
	FieldFloat
	FieldBool
	FieldTimestamp
	FieldCategorical
)

// String returns the lowercase name used in logs and DDL comments.
func (ft FieldType) String() string {
	switch ft {
	case FieldText:
		return "text"
	case FieldInteger:
		return "integer"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldTimestamp:
		return "timestamp"
	case FieldCategorical:
		return "categorical"
	default:
		return fmt.Sprintf("FieldType(%d)", int(ft))
	}
}

// ParseFieldType converts a type name into a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "text", "string", "str":
		return FieldText, nil
	case "integer", "int", "int64":
		return FieldInteger, nil
	case "float", "float64", "numeric":
		return FieldFloat, nil
	case "bool", "boolean":
		return FieldBool, nil
	case "timestamp", "datetime", "date":
		return FieldTimestamp, nil
	case "categorical", "category", "enum":
		return FieldCategorical, nil
	default:
		return FieldText, fmt.Errorf("unknown field type %q", s)
	}
}

// FieldSpec declares how a single column is coerced.
type FieldSpec struct {
	Name       string              // Column header name (must match exactly)
	Type       FieldType           // Target type
	Categories []string            // Allowed levels for FieldCategorical (empty = any)
	Layout     string              // Explicit time layout for FieldTimestamp
	Normalizer func(string) string // Optional transformation applied before coercion
}

// Format identifies how a source is parsed.
type Format string

const (
	FormatAuto  Format = ""
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatJSONL Format = "jsonl"
	FormatXLSX  Format = "xlsx"
)

// Compression identifies the compression wrapper around a source.
type Compression string

const (
	CompressionAuto  Compression = ""
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
	CompressionXZ    Compression = "xz"
	CompressionZstd  Compression = "zstd"
)

// Source is one input location. Exactly one of Path or Reader must be set.
type Source struct {
	Path        string      // Local file path
	Reader      io.Reader   // Byte stream; seekable readers are rewound instead of buffered
	Name        string      // Display name for readers; also used for format detection
	Format      Format      // Detected from the name when empty
	Compression Compression // Detected from the name when empty
	Sheet       string      // XLSX sheet name (default: first sheet)
}

// Label returns the path or name used to identify the source in results and errors.
func (s Source) Label() string {
	if s.Path != "" {
		return s.Path
	}
	if s.Name != "" {
		return s.Name
	}
	return "<stream>"
}

// ConcatPolicy controls how Concat treats differing column sets.
type ConcatPolicy int

const (
	// ConcatStrict fails with SchemaMismatchError when column sets differ.
	ConcatStrict ConcatPolicy = iota
	// ConcatUnion keeps every column and pads absent ones with Missing.
	ConcatUnion
)

// LoadRequest describes one load. It is consumed once by the loader.
type LoadRequest struct {
	Sources   []Source
	Encodings []string             // Candidate encodings in order (default: utf-8, latin-1)
	Types     map[string]FieldType // Explicit per-column types
	Fields    []FieldSpec          // Optional richer declarations; Type here wins over Types
	ChunkSize int                  // Rows per chunk; 0 reads each source whole

	Delimiter  rune     // CSV field separator (default ',' or '\t' for TSV)
	SkipRows   int      // Rows to discard before the header
	NoHeader   bool     // Treat the first row as data and name columns "0".."n-1"
	FindHeader []string // Leading header names to search for within HeaderSearchRows
	NullTokens []string // Additional raw values treated as missing in typed columns
	InferTypes bool     // Infer types for undeclared columns from the first chunk
	CleanCells bool     // Strip spreadsheet artifacts (="x", quotes) before coercion

	Concat ConcatPolicy // How multiple sources are folded together
}

// FieldSpecs merges Types and Fields into one spec per declared column.
func (r LoadRequest) FieldSpecs() map[string]FieldSpec {
	specs := make(map[string]FieldSpec, len(r.Types)+len(r.Fields))
	for name, ft := range r.Types {
		specs[name] = FieldSpec{Name: name, Type: ft}
	}
	for _, f := range r.Fields {
		specs[f.Name] = f
	}
	return specs
}

// SourceInfo is the per-source metadata of a load.
type SourceInfo struct {
	Path        string
	Format      Format
	Encoding    string
	Rows        int
	Skipped     int
	Coerced     int
	ExtraFields int
	BytesRead   int64
}

// RowIssue records a row that was skipped or a cell that failed coercion.
type RowIssue struct {
	Source     string
	LineNumber int
	Column     string // Empty for whole-row problems
	Reason     string
	Data       []string
}

// Diagnostics accumulates row-level problems. Nothing here is ever fatal.
type Diagnostics struct {
	Skipped     int // Malformed rows dropped
	Coerced     int // Cells replaced by Missing after a failed coercion
	ExtraFields int // JSON keys outside the established column set
	Issues      []RowIssue
	MaxIssues   int
}

// AddIssue records an issue, keeping at most MaxIssues entries.
func (d *Diagnostics) AddIssue(issue RowIssue) {
	if d.MaxIssues > 0 && len(d.Issues) >= d.MaxIssues {
		return
	}
	d.Issues = append(d.Issues, issue)
}

// Merge folds other into d.
func (d *Diagnostics) Merge(other Diagnostics) {
	d.Skipped += other.Skipped
	d.Coerced += other.Coerced
	d.ExtraFields += other.ExtraFields
	for _, issue := range other.Issues {
		d.AddIssue(issue)
	}
}

// LoadResult is the outcome of a load. The caller owns it.
type LoadResult struct {
	LoadID   string
	Table    *Table
	Sources  []SourceInfo
	Diag     Diagnostics
	Duration time.Duration
}

// Path returns the first source's path, or "" for an empty result.
func (r *LoadResult) Path() string {
	if len(r.Sources) == 0 {
		return ""
	}
	return r.Sources[0].Path
}

// Encoding returns the encoding used for the first source.
func (r *LoadResult) Encoding() string {
	if len(r.Sources) == 0 {
		return ""
	}
	return r.Sources[0].Encoding
}

// RowCount returns the number of rows in the resulting table.
func (r *LoadResult) RowCount() int {
	if r.Table == nil {
		return 0
	}
	return r.Table.NumRows()
}

// DiagnosticCount is the total of skipped rows and coerced cells.
func (r *LoadResult) DiagnosticCount() int {
	return r.Diag.Skipped + r.Diag.Coerced
}
