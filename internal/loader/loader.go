// Package loader reads tabular sources into typed tables.
//
// A load detects each source's text encoding against an ordered candidate
// list, parses it as CSV, TSV, JSON lines or XLSX, coerces declared columns,
// and either yields fixed-size chunks or concatenates everything into one
// table. Row-level problems are counted in Diagnostics and never abort a
// load; missing sources, undecodable bytes and schema conflicts do.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/logging"
)

// Defaults are applied to every request field left at its zero value.
type Defaults struct {
	Encodings        []string
	Types            map[string]core.FieldType // Merged under request Types and Fields
	ChunkSize        int
	Delimiter        rune // CSV only; TSV keeps its tab
	NullTokens       []string
	HeaderSearchRows int
	MaxIssues        int
	MaxStreamBytes   int64
	InferTypes       bool
	InferSampleRows  int // Rows read to infer undeclared column types
	Timeout          time.Duration
}

const (
	DefaultMaxIssues       = 100
	DefaultMaxStreamBytes  = 100 << 20
	DefaultInferSampleRows = 1000
)

// Loader runs loads. It holds no per-load state and is safe for concurrent use.
type Loader struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	defaults Defaults
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the base logger. Request-scoped fields from the context
// are added per load.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithClock sets the clock used to time loads.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Loader) { l.clock = clock }
}

// WithDefaults replaces the request defaults. Zero fields fall back to the
// package defaults.
func WithDefaults(d Defaults) Option {
	return func(l *Loader) { l.defaults = d }
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}

	d := &l.defaults
	if len(d.Encodings) == 0 {
		d.Encodings = DefaultEncodings
	}
	if d.Delimiter == 0 {
		d.Delimiter = ','
	}
	if d.HeaderSearchRows <= 0 {
		d.HeaderSearchRows = DefaultHeaderSearchRows
	}
	if d.MaxIssues <= 0 {
		d.MaxIssues = DefaultMaxIssues
	}
	if d.MaxStreamBytes <= 0 {
		d.MaxStreamBytes = DefaultMaxStreamBytes
	}
	if d.InferSampleRows <= 0 {
		d.InferSampleRows = DefaultInferSampleRows
	}
	return l
}

// NewFromConfig creates a Loader whose defaults come from cfg.
func NewFromConfig(cfg config.LoaderConfig, opts ...Option) (*Loader, error) {
	types, err := cfg.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	d := Defaults{
		Encodings:        cfg.Encodings,
		Types:            types,
		ChunkSize:        cfg.ChunkSize,
		Delimiter:        cfg.DelimiterRune(),
		NullTokens:       cfg.NullTokens,
		HeaderSearchRows: cfg.HeaderSearchRows,
		MaxIssues:        cfg.MaxIssues,
		MaxStreamBytes:   cfg.MaxStreamBytes,
		InferTypes:       cfg.InferTypes,
		Timeout:          cfg.Timeout,
	}
	return New(append([]Option{WithDefaults(d)}, opts...)...), nil
}

// Defaults returns the effective defaults.
func (l *Loader) Defaults() Defaults { return l.defaults }

// withDefaults fills unset request fields.
func (l *Loader) withDefaults(req core.LoadRequest) core.LoadRequest {
	if len(req.Encodings) == 0 {
		req.Encodings = l.defaults.Encodings
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = l.defaults.ChunkSize
	}
	if req.NullTokens == nil {
		req.NullTokens = l.defaults.NullTokens
	}
	req.InferTypes = req.InferTypes || l.defaults.InferTypes
	if len(l.defaults.Types) > 0 {
		types := make(map[string]core.FieldType, len(l.defaults.Types)+len(req.Types))
		for name, ft := range l.defaults.Types {
			types[name] = ft
		}
		for name, ft := range req.Types {
			types[name] = ft
		}
		req.Types = types
	}
	return req
}

// Load reads every source and returns a single table. Chunks of one source
// are joined first, then sources are combined with req.Concat.
func (l *Loader) Load(ctx context.Context, req core.LoadRequest) (*core.LoadResult, error) {
	it, err := l.Chunks(ctx, req)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var perSource [][]*core.Table
	for it.Next() {
		idx := it.SourceIndex()
		for len(perSource) <= idx {
			perSource = append(perSource, nil)
		}
		perSource[idx] = append(perSource[idx], it.Chunk())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	tables := make([]*core.Table, 0, len(perSource))
	for _, chunks := range perSource {
		t, err := concatOwned(chunks, core.ConcatStrict)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	tbl, err := concatOwned(tables, req.Concat)
	if err != nil {
		it.logger.Error("load failed", "error", err, "code", core.MapError(err).Code)
		return nil, err
	}

	res := it.Result()
	res.Table = tbl
	return res, nil
}

// concatOwned is core.Concat for tables the loader built itself, which
// need no defensive copy when there is only one.
func concatOwned(tables []*core.Table, policy core.ConcatPolicy) (*core.Table, error) {
	if len(tables) == 1 {
		return tables[0], nil
	}
	return core.Concat(tables, policy)
}

// Chunks starts a chunked load. Request validation and source existence
// checks happen here; everything else happens as the iterator advances.
func (l *Loader) Chunks(ctx context.Context, req core.LoadRequest) (*ChunkIterator, error) {
	req = l.withDefaults(req)
	loadID := uuid.NewString()
	logger := logging.FromContextWith(ctx, l.logger).With("load_id", loadID)

	fail := func(err error) (*ChunkIterator, error) {
		logger.Error("load failed", "error", err, "code", core.MapError(err).Code)
		return nil, err
	}

	cands, err := resolveEncodings(req.Encodings)
	if err != nil {
		return fail(err)
	}
	for i, src := range req.Sources {
		if err := checkSource(i, src); err != nil {
			return fail(err)
		}
	}

	var cancel context.CancelFunc = func() {}
	if l.defaults.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.defaults.Timeout)
	}

	logger.Info("load started", "sources", len(req.Sources), "chunk_size", req.ChunkSize)
	return &ChunkIterator{
		ctx:    ctx,
		cancel: cancel,
		loader: l,
		req:    req,
		cands:  cands,
		logger: logger,
		start:  l.clock.Now(),
		result: core.LoadResult{
			LoadID: loadID,
			Diag:   core.Diagnostics{MaxIssues: l.defaults.MaxIssues},
		},
		chunkSrc: -1,
	}, nil
}
