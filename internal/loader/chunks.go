package loader

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/tabload/internal/core"
)

// ChunkIterator yields the chunks of a load in source order. It is finite
// and single-pass. Chunks never span sources; a source without data rows
// yields one empty chunk that still carries its columns.
//
//	it, err := l.Chunks(ctx, req)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//		use(it.Chunk())
//	}
//	if err := it.Err(); err != nil { ... }
//
// The iterator releases its sources when it is exhausted, on the first
// error, or on Close, whichever comes first.
type ChunkIterator struct {
	ctx    context.Context
	cancel context.CancelFunc
	loader *Loader
	req    core.LoadRequest
	cands  []candidate
	logger *slog.Logger
	start  time.Time

	next     int // Index of the next source to open
	cur      *sourceReader
	curIdx   int
	chunk    *core.Table
	chunkSrc int
	err      error
	done     bool
	closed   bool // Stopped by Close before exhaustion
	result   core.LoadResult
}

// Next advances to the next chunk. It returns false when the load is
// exhausted or has failed; Err tells the two apart.
func (it *ChunkIterator) Next() bool {
	if it.done {
		return false
	}
	it.chunk = nil

	for {
		if err := it.ctx.Err(); err != nil {
			it.finish(err)
			return false
		}

		if it.cur == nil {
			if it.next >= len(it.req.Sources) {
				it.finish(nil)
				return false
			}
			sr, err := it.loader.openSource(it.ctx, it.logger, it.req.Sources[it.next], &it.req, it.cands,
				it.loader.defaults.HeaderSearchRows, it.loader.defaults.MaxIssues)
			if err != nil {
				it.finish(err)
				return false
			}
			it.cur, it.curIdx = sr, it.next
			it.next++
		}

		tbl, err := it.cur.readChunk(it.ctx, it.req.ChunkSize)
		if err != nil {
			it.finish(err)
			return false
		}
		if tbl == nil {
			if err := it.closeSource(); err != nil {
				it.finish(err)
				return false
			}
			continue
		}
		it.chunk, it.chunkSrc = tbl, it.curIdx
		it.logger.Debug("chunk read",
			"source", it.cur.info.Path,
			"rows", tbl.NumRows(),
			"progress", it.cur.stream.counter.Progress(),
		)
		return true
	}
}

// Chunk returns the current chunk. Each chunk is a distinct table owned by
// the caller.
func (it *ChunkIterator) Chunk() *core.Table { return it.chunk }

// SourceIndex returns the position in the request of the source the
// current chunk came from.
func (it *ChunkIterator) SourceIndex() int { return it.chunkSrc }

// Err returns the error that stopped the iterator, if any.
func (it *ChunkIterator) Err() error { return it.err }

// Result returns the load metadata. It is complete once Next has returned
// false; Table is always nil.
func (it *ChunkIterator) Result() *core.LoadResult {
	res := it.result
	res.Sources = append([]core.SourceInfo(nil), it.result.Sources...)
	return &res
}

// Close stops the load early and releases any open source. It is safe to
// call more than once.
func (it *ChunkIterator) Close() error {
	if it.done {
		return nil
	}
	it.closed = true
	it.finish(nil)
	return nil
}

// closeSource finalizes the current source and folds its diagnostics
// into the result.
func (it *ChunkIterator) closeSource() error {
	sr := it.cur
	it.cur = nil
	err := sr.close()
	it.result.Sources = append(it.result.Sources, sr.info)
	it.result.Diag.Merge(sr.diag)

	it.logger.Info("source loaded",
		"source", sr.info.Path,
		"encoding", sr.info.Encoding,
		"rows", sr.info.Rows,
		"skipped", sr.info.Skipped,
		"coerced", sr.info.Coerced,
		"bytes", sr.info.BytesRead,
	)
	return err
}

func (it *ChunkIterator) finish(err error) {
	if it.cur != nil {
		if cerr := it.closeSource(); err == nil {
			err = cerr
		}
	}
	it.done = true
	it.err = err
	it.chunk = nil
	it.result.Duration = it.loader.clock.Since(it.start)
	it.cancel()

	if err != nil {
		it.logger.Error("load failed",
			"error", err,
			"code", core.MapError(err).Code,
			"duration", it.result.Duration,
		)
		return
	}
	msg := "load completed"
	if it.closed {
		msg = "load closed early"
	}
	it.logger.Info(msg,
		"sources", len(it.result.Sources),
		"skipped", it.result.Diag.Skipped,
		"coerced", it.result.Diag.Coerced,
		"duration", it.result.Duration,
	)
}
