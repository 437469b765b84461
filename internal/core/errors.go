package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrSourceNotFound = errors.New("source not found")
	ErrEncoding       = errors.New("encoding error")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// SourceNotFoundError is returned when a source path does not exist.
type SourceNotFoundError struct {
	Path string
	Err  error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source not found: %s", e.Path)
}

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

func (e *SourceNotFoundError) Is(target error) bool { return target == ErrSourceNotFound }

// EncodingAttempt records why one candidate encoding was rejected.
type EncodingAttempt struct {
	Encoding string
	Err      error
}

// EncodingError is returned when no candidate encoding decodes a source.
type EncodingError struct {
	Source   string
	Attempts []EncodingAttempt
}

func (e *EncodingError) Error() string {
	tried := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		tried[i] = fmt.Sprintf("%s (%v)", a.Encoding, a.Err)
	}
	return fmt.Sprintf("encoding error: %s could not be decoded; tried %s", e.Source, strings.Join(tried, ", "))
}

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// SchemaMismatchError is returned by Concat when column sets differ and
// union padding was not requested.
type SchemaMismatchError struct {
	Index   int      // Position of the offending table
	Missing []string // Columns of the first table absent from it
	Extra   []string // Columns it has that the first table does not
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(e.Extra, ", "))
	}
	return fmt.Sprintf("schema mismatch: table %d: %s", e.Index, strings.Join(parts, "; "))
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }
