package loader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
)

// maxJSONLine bounds a single JSON-lines record. Longer lines are skipped.
const maxJSONLine = 16 << 20

// jsonlReader reads one JSON object per line. The first object's keys, in
// document order, fix the columns.
type jsonlReader struct {
	br      *bufio.Reader
	line    int
	header  []string
	index   map[string]int
	pending []error // Malformed lines seen before the header object
	first   map[string]any
	extra   int
}

func newJSONLReader(r io.Reader, _ parseOptions) (rowReader, error) {
	j := &jsonlReader{br: bufio.NewReaderSize(r, 64<<10)}

	for {
		line, ok, err := j.scan()
		var mr *malformedRowError
		if errors.As(err, &mr) {
			j.pending = append(j.pending, mr)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errEmptySource
		}
		obj, err := decodeObject(line)
		if err != nil {
			j.pending = append(j.pending, &malformedRowError{line: j.line, reason: err.Error(), data: []string{string(line)}})
			continue
		}
		keys, err := objectKeys(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", j.line, err)
		}
		j.header = normalizeHeader(keys)
		j.index = make(map[string]int, len(keys))
		for i, k := range keys {
			if _, dup := j.index[k]; !dup {
				j.index[k] = i
			}
		}
		j.first = obj
		return j, nil
	}
}

// scan returns the next non-blank line. ok is false at the end of input.
// An overlong line is reported as a *malformedRowError.
func (j *jsonlReader) scan() ([]byte, bool, error) {
	for {
		raw, tooLong, err := j.readLine()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		j.line++
		if tooLong {
			return nil, false, &malformedRowError{line: j.line, reason: fmt.Sprintf("line exceeds %d bytes", maxJSONLine)}
		}
		if line := bytes.TrimSpace(raw); len(line) > 0 {
			return line, true, nil
		}
	}
}

// readLine returns one line without its terminator. Lines longer than
// maxJSONLine are consumed and discarded, and tooLong is set.
func (j *jsonlReader) readLine() (line []byte, tooLong bool, err error) {
	started := false
	for {
		chunk, isPrefix, err := j.br.ReadLine()
		if err != nil {
			if err == io.EOF && started {
				return line, tooLong, nil
			}
			return nil, false, err
		}
		started = true
		if !tooLong {
			if len(line)+len(chunk) > maxJSONLine {
				line, tooLong = nil, true
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}

func (j *jsonlReader) Header() []string { return j.header }

func (j *jsonlReader) ExtraFields() int { return j.extra }

func (j *jsonlReader) Next() (record, error) {
	if len(j.pending) > 0 {
		err := j.pending[0]
		j.pending = j.pending[1:]
		return record{}, err
	}

	var obj map[string]any
	line := j.line
	if j.first != nil {
		obj, j.first = j.first, nil
	} else {
		raw, ok, err := j.scan()
		if err != nil {
			return record{}, err
		}
		if !ok {
			return record{}, io.EOF
		}
		line = j.line
		obj, err = decodeObject(raw)
		if err != nil {
			return record{}, &malformedRowError{line: line, reason: err.Error(), data: []string{string(raw)}}
		}
	}

	rec := record{
		line:   line,
		fields: make([]string, len(j.header)),
		absent: make([]bool, len(j.header)),
	}
	for i := range rec.absent {
		rec.absent[i] = true
	}
	for k, v := range obj {
		i, ok := j.index[k]
		if !ok {
			j.extra++
			continue
		}
		s, present, err := scalarText(v)
		if err != nil {
			return record{}, &malformedRowError{line: line, reason: err.Error()}
		}
		rec.fields[i], rec.absent[i] = s, !present
	}
	return rec, nil
}

func (j *jsonlReader) Close() error { return nil }

// decodeObject parses a line that must hold a single JSON object.
func decodeObject(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	if obj == nil {
		return nil, errors.New("invalid JSON object: null")
	}
	return obj, nil
}

// scalarText renders a decoded JSON value as cell text. present is false
// for null. Nested values are kept as compact JSON.
func scalarText(v any) (string, bool, error) {
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case json.Number:
		return x.String(), true, nil
	case bool:
		return strconv.FormatBool(x), true, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	}
}

// objectKeys returns the top-level keys of a JSON object in document order.
// The object must already be known to be valid JSON.
func objectKeys(data []byte) ([]string, error) {
	s := &keyScanner{data: data}
	s.skipSpace()
	if !s.consume('{') {
		return nil, errors.New("not a JSON object")
	}
	var keys []string
	s.skipSpace()
	if s.consume('}') {
		return keys, nil
	}
	for {
		s.skipSpace()
		start := s.pos
		if err := s.skipString(); err != nil {
			return nil, err
		}
		var key string
		if err := json.Unmarshal(s.data[start:s.pos], &key); err != nil {
			return nil, err
		}
		keys = append(keys, key)

		s.skipSpace()
		if !s.consume(':') {
			return nil, errors.New("expected ':' after object key")
		}
		if err := s.skipValue(); err != nil {
			return nil, err
		}
		s.skipSpace()
		if s.consume(',') {
			continue
		}
		if s.consume('}') {
			return keys, nil
		}
		return nil, errors.New("expected ',' or '}' in object")
	}
}

type keyScanner struct {
	data []byte
	pos  int
}

func (s *keyScanner) skipSpace() {
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		default:
			return
		}
	}
}

func (s *keyScanner) consume(b byte) bool {
	if s.pos < len(s.data) && s.data[s.pos] == b {
		s.pos++
		return true
	}
	return false
}

func (s *keyScanner) skipString() error {
	if !s.consume('"') {
		return errors.New("expected string")
	}
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case '\\':
			s.pos += 2
		case '"':
			s.pos++
			return nil
		default:
			s.pos++
		}
	}
	return errors.New("unterminated string")
}

// skipValue moves past one JSON value of any kind.
func (s *keyScanner) skipValue() error {
	s.skipSpace()
	if s.pos >= len(s.data) {
		return errors.New("unexpected end of object")
	}
	switch s.data[s.pos] {
	case '"':
		return s.skipString()
	case '{', '[':
		depth := 0
		for s.pos < len(s.data) {
			switch s.data[s.pos] {
			case '"':
				if err := s.skipString(); err != nil {
					return err
				}
				continue
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
			s.pos++
			if depth == 0 {
				return nil
			}
		}
		return errors.New("unterminated container")
	default:
		for s.pos < len(s.data) {
			switch s.data[s.pos] {
			case ',', '}', ']', ' ', '\t', '\n', '\r':
				return nil
			}
			s.pos++
		}
		return nil
	}
}
