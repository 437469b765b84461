package loader

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/JonMunkholm/tabload/internal/core"
)

// ContextCheckInterval is how many rows are read between cancellation checks.
const ContextCheckInterval = 100

// opener yields a fresh raw byte stream of a source on each call, together
// with its size when known. Encoding detection reads a source once per
// candidate and parsing reads it again.
type opener func() (io.ReadCloser, int64, error)

// checkSource fails fast on sources that cannot be opened at all.
func checkSource(i int, src core.Source) error {
	switch {
	case src.Path == "" && src.Reader == nil:
		return fmt.Errorf("source %d: no path or reader", i)
	case src.Path != "" && src.Reader != nil:
		return fmt.Errorf("source %s: both path and reader set", src.Path)
	case src.Path != "":
		if _, err := os.Stat(src.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return &core.SourceNotFoundError{Path: src.Path, Err: err}
			}
			return err
		}
	}
	return nil
}

func newOpener(src core.Source, maxStreamBytes int64) (opener, error) {
	if src.Path != "" {
		path := src.Path
		return func() (io.ReadCloser, int64, error) {
			f, err := os.Open(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, 0, &core.SourceNotFoundError{Path: path, Err: err}
				}
				return nil, 0, err
			}
			var size int64
			if fi, err := f.Stat(); err == nil {
				size = fi.Size()
			}
			return f, size, nil
		}, nil
	}

	// Seekable readers are rewound to where they started.
	if rs, ok := src.Reader.(io.ReadSeeker); ok {
		if start, err := rs.Seek(0, io.SeekCurrent); err == nil {
			return func() (io.ReadCloser, int64, error) {
				if _, err := rs.Seek(start, io.SeekStart); err != nil {
					return nil, 0, fmt.Errorf("rewind %s: %w", src.Label(), err)
				}
				return io.NopCloser(rs), 0, nil
			}, nil
		}
	}

	// Anything else is buffered once, up to the limit.
	data, err := io.ReadAll(io.LimitReader(src.Reader, maxStreamBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Label(), err)
	}
	if int64(len(data)) > maxStreamBytes {
		return nil, fmt.Errorf("source %s: stream exceeds %d bytes", src.Label(), maxStreamBytes)
	}
	return func() (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}, nil
}

// decompress wraps r according to comp. The returned close func releases
// decoder resources and may be nil.
func decompress(r io.Reader, comp core.Compression) (io.Reader, func() error, error) {
	switch comp {
	case core.CompressionGzip:
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gzReader, gzReader.Close, nil

	case core.CompressionBzip2:
		return bzip2.NewReader(r), nil, nil

	case core.CompressionXZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}
		return xzReader, nil, nil

	case core.CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return decoder, func() error { decoder.Close(); return nil }, nil

	case core.CompressionNone, core.CompressionAuto:
		return r, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression %q", comp)
	}
}

// stream is one opened pass over a source.
type stream struct {
	io.Reader
	counter *CountingReader
	closers []func() error
}

func (s *stream) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openStream(open opener, comp core.Compression) (*stream, error) {
	rc, size, err := open()
	if err != nil {
		return nil, err
	}
	s := &stream{counter: NewCountingReader(rc, size), closers: []func() error{rc.Close}}
	r, closeFn, err := decompress(s.counter, comp)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if closeFn != nil {
		s.closers = append(s.closers, closeFn)
	}
	s.Reader = r
	return s, nil
}

// sourceReader turns one source into typed tables.
type sourceReader struct {
	info     core.SourceInfo
	diag     core.Diagnostics
	stream   *stream
	rows     rowReader
	specs    []core.FieldSpec
	typed    []bool
	nulls    []string
	clean    bool
	buffered []record
	seen     int
	emitted  bool
}

// detectEncoding returns the first candidate that decodes the whole source.
func detectEncoding(ctx context.Context, logger *slog.Logger, src core.Source, open opener, comp core.Compression, cands []candidate) (candidate, error) {
	var attempts []core.EncodingAttempt
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return candidate{}, err
		}
		s, err := openStream(open, comp)
		if err != nil {
			return candidate{}, err
		}
		err = c.validate(s)
		_ = s.Close()
		if err == nil {
			if len(attempts) > 0 {
				logger.Warn("encoding fallback", "source", src.Label(), "encoding", c.name, "rejected", len(attempts))
			}
			return c, nil
		}
		if !errors.Is(err, errUndecodable) {
			return candidate{}, fmt.Errorf("read %s: %w", src.Label(), err)
		}
		logger.Debug("encoding rejected", "source", src.Label(), "encoding", c.name, "error", err)
		attempts = append(attempts, core.EncodingAttempt{Encoding: c.name, Err: err})
	}
	return candidate{}, &core.EncodingError{Source: src.Label(), Attempts: attempts}
}

// openSource detects the encoding, opens the parser and resolves column types.
func (l *Loader) openSource(ctx context.Context, logger *slog.Logger, src core.Source, req *core.LoadRequest, cands []candidate, headerSearchRows, maxIssues int) (*sourceReader, error) {
	def, comp, err := detect(src)
	if err != nil {
		return nil, err
	}
	open, err := newOpener(src, l.defaults.MaxStreamBytes)
	if err != nil {
		return nil, err
	}

	encName := "utf-8"
	var cand *candidate
	if !def.Binary {
		c, err := detectEncoding(ctx, logger, src, open, comp, cands)
		if err != nil {
			return nil, err
		}
		cand, encName = &c, c.name
	}

	s, err := openStream(open, comp)
	if err != nil {
		return nil, err
	}
	var r io.Reader = s
	if cand != nil {
		r = cand.decode(s)
	}

	delim := req.Delimiter
	if delim == 0 && def.Format == core.FormatCSV {
		delim = l.defaults.Delimiter
	}
	rows, err := def.open(r, parseOptions{
		delimiter:        delim,
		skipRows:         req.SkipRows,
		noHeader:         req.NoHeader,
		findHeader:       req.FindHeader,
		headerSearchRows: headerSearchRows,
		sheet:            src.Sheet,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("parse %s: %w", src.Label(), err)
	}

	sr := &sourceReader{
		info: core.SourceInfo{
			Path:     src.Label(),
			Format:   def.Format,
			Encoding: encName,
		},
		diag:   core.Diagnostics{MaxIssues: maxIssues},
		stream: s,
		rows:   rows,
		nulls:  req.NullTokens,
		clean:  req.CleanCells,
	}
	sr.resolveSpecs(req.FieldSpecs())

	if req.InferTypes {
		if err := sr.infer(ctx, l.defaults.InferSampleRows); err != nil {
			_ = sr.close()
			return nil, err
		}
	}

	logger.Debug("source opened",
		"source", sr.info.Path,
		"format", sr.info.Format,
		"encoding", sr.info.Encoding,
		"columns", len(sr.specs),
	)
	return sr, nil
}

// resolveSpecs pairs header columns with declared specs. Undeclared
// columns stay untyped and keep their raw text.
func (s *sourceReader) resolveSpecs(declared map[string]core.FieldSpec) {
	header := s.rows.Header()
	s.specs = make([]core.FieldSpec, len(header))
	s.typed = make([]bool, len(header))
	for i, name := range header {
		spec, ok := declared[name]
		spec.Name = name
		if !ok {
			spec.Type = core.FieldText
		}
		s.specs[i] = spec
		s.typed[i] = ok
	}
}

// infer buffers up to n records and types every undeclared column from them.
// The sample is independent of the chunk size, so chunked and unchunked
// loads agree.
func (s *sourceReader) infer(ctx context.Context, n int) error {
	for len(s.buffered) < n {
		rec, ok, err := s.read(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.buffered = append(s.buffered, rec)
	}

	samples := make([]string, 0, len(s.buffered))
	for i := range s.specs {
		if s.typed[i] {
			continue
		}
		samples = samples[:0]
		for _, rec := range s.buffered {
			if rec.absent != nil && rec.absent[i] {
				continue
			}
			raw := rec.fields[i]
			if s.clean {
				raw = core.CleanCell(raw)
			}
			samples = append(samples, raw)
		}
		if ft := core.InferType(samples, s.nulls); ft != core.FieldText {
			s.specs[i].Type = ft
			s.typed[i] = true
		}
	}
	return nil
}

// read returns the next well-formed record from the parser, counting and
// skipping malformed ones. ok is false at the end of the source.
func (s *sourceReader) read(ctx context.Context) (record, bool, error) {
	for {
		s.seen++
		if s.seen%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return record{}, false, err
			}
		}

		rec, err := s.rows.Next()
		if err == nil {
			return rec, true, nil
		}
		if err == io.EOF {
			return record{}, false, nil
		}
		var mr *malformedRowError
		if errors.As(err, &mr) {
			s.diag.Skipped++
			s.diag.AddIssue(core.RowIssue{
				Source:     s.info.Path,
				LineNumber: mr.line,
				Reason:     mr.reason,
				Data:       mr.data,
			})
			continue
		}
		return record{}, false, fmt.Errorf("read %s: %w", s.info.Path, err)
	}
}

func (s *sourceReader) next(ctx context.Context) (record, bool, error) {
	if len(s.buffered) > 0 {
		rec := s.buffered[0]
		s.buffered = s.buffered[1:]
		return rec, true, nil
	}
	return s.read(ctx)
}

// readChunk builds a table of up to n rows; n <= 0 reads the rest of the
// source. It returns nil once the source is exhausted. A source without
// data rows yields one empty table so its columns are still reported.
func (s *sourceReader) readChunk(ctx context.Context, n int) (*core.Table, error) {
	capacity := n
	if capacity <= 0 {
		capacity = 1024
	}
	b := core.NewBuilder(s.specs, capacity)
	for n <= 0 || b.Len() < n {
		rec, ok, err := s.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		b.Append(s.convert(rec))
	}
	if b.Len() == 0 && s.emitted {
		return nil, nil
	}
	s.emitted = true
	s.info.Rows += b.Len()
	return b.Build(), nil
}

// convert coerces one record. Failed coercions become Missing and are counted.
func (s *sourceReader) convert(rec record) []core.Value {
	row := make([]core.Value, len(s.specs))
	for i, raw := range rec.fields {
		if rec.absent != nil && rec.absent[i] {
			continue
		}
		if s.clean {
			raw = core.CleanCell(raw)
		}
		if !s.typed[i] {
			row[i] = core.Text(raw)
			continue
		}
		v, ok := core.Coerce(raw, s.specs[i], s.nulls)
		if !ok {
			s.diag.Coerced++
			s.diag.AddIssue(core.RowIssue{
				Source:     s.info.Path,
				LineNumber: rec.line,
				Column:     s.specs[i].Name,
				Reason:     fmt.Sprintf("cannot convert %q to %s", raw, s.specs[i].Type),
				Data:       rec.fields,
			})
		}
		row[i] = v
	}
	return row
}

// close releases the source and finalizes its SourceInfo.
func (s *sourceReader) close() error {
	err := s.rows.Close()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	s.info.BytesRead = s.stream.counter.BytesRead
	s.info.Skipped = s.diag.Skipped
	s.info.Coerced = s.diag.Coerced
	s.info.ExtraFields = s.rows.ExtraFields()
	s.diag.ExtraFields = s.info.ExtraFields
	return err
}
