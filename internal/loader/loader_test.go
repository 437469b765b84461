package loader

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/logging"
)

func newTestLoader(opts ...Option) *Loader {
	base := []Option{WithLogger(logging.New(io.Discard, "debug", "text"))}
	return New(append(base, opts...)...)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func csvSource(data string) core.Source {
	return core.Source{Reader: strings.NewReader(data), Name: "inline.csv"}
}

func column(t *testing.T, tbl *core.Table, name string) []core.Value {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, "column %q", name)
	return col.Values
}

func TestLoad_ReproducesSource(t *testing.T) {
	path := writeFile(t, "people.csv", []byte("name,age,city\nAlice,30,Oslo\nBob,25,Bergen\n"))

	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Path: path}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age", "city"}, res.Table.ColumnNames())
	assert.Equal(t, [][]core.Value{
		{core.Text("Alice"), core.Text("30"), core.Text("Oslo")},
		{core.Text("Bob"), core.Text("25"), core.Text("Bergen")},
	}, res.Table.Rows())
	assert.Equal(t, path, res.Path())
	assert.Equal(t, "utf-8", res.Encoding())
	assert.Equal(t, 2, res.RowCount())
	assert.Equal(t, 0, res.DiagnosticCount())

	require.Len(t, res.Sources, 1)
	assert.Equal(t, core.FormatCSV, res.Sources[0].Format)
	assert.Equal(t, int64(len("name,age,city\nAlice,30,Oslo\nBob,25,Bergen\n")), res.Sources[0].BytesRead)

	_, err = uuid.Parse(res.LoadID)
	assert.NoError(t, err)
}

func TestLoad_CoercionFailureBecomesMissing(t *testing.T) {
	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("id,amount\n1,10\n2,bad\n3,30")},
		Types:   map[string]core.FieldType{"amount": core.FieldFloat},
	})
	require.NoError(t, err)

	assert.Equal(t, []core.Value{core.Float(10), core.Missing, core.Float(30)}, column(t, res.Table, "amount"))
	assert.Equal(t, []core.Value{core.Text("1"), core.Text("2"), core.Text("3")}, column(t, res.Table, "id"))
	assert.Equal(t, 1, res.DiagnosticCount())
	assert.Equal(t, 1, res.Diag.Coerced)

	require.Len(t, res.Diag.Issues, 1)
	issue := res.Diag.Issues[0]
	assert.Equal(t, "amount", issue.Column)
	assert.Equal(t, 3, issue.LineNumber)
	assert.Equal(t, []string{"2", "bad"}, issue.Data)
	assert.Contains(t, issue.Reason, `"bad"`)
}

func TestLoad_IntegerOutOfRangeIsMissing(t *testing.T) {
	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("id,n\n1,9223372036854775807\n2,9223372036854775808\n3,1e17\n")},
		Types:   map[string]core.FieldType{"n": core.FieldInteger},
	})
	require.NoError(t, err)

	assert.Equal(t, []core.Value{core.Int(9223372036854775807), core.Missing, core.Missing}, column(t, res.Table, "n"))
	assert.Equal(t, 2, res.Diag.Coerced)
	require.Len(t, res.Diag.Issues, 2)
	assert.Equal(t, 3, res.Diag.Issues[0].LineNumber)
	assert.Contains(t, res.Diag.Issues[0].Reason, `"9223372036854775808"`)
}

func TestLoad_EncodingFallback(t *testing.T) {
	var logs bytes.Buffer
	l := New(WithLogger(logging.New(&logs, "debug", "json")))
	ctx := logging.ContextWithRequestID(context.Background(), "req-42")

	res, err := l.Load(ctx, core.LoadRequest{
		Sources: []core.Source{{Reader: bytes.NewReader([]byte("name,city\ncaf\xe9,K\xf8ge\n")), Name: "latin.csv"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "latin-1", res.Encoding())
	assert.Equal(t, []core.Value{core.Text("café")}, column(t, res.Table, "name"))
	assert.Equal(t, []core.Value{core.Text("Køge")}, column(t, res.Table, "city"))
	assert.Contains(t, logs.String(), `"msg":"encoding fallback"`)
	assert.Contains(t, logs.String(), `"request_id":"req-42"`)
	assert.Contains(t, logs.String(), `"load_id":"`+res.LoadID+`"`)
}

func TestLoad_EncodingError(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources:   []core.Source{{Reader: bytes.NewReader([]byte("name\ncaf\xe9\n")), Name: "latin.csv"}},
		Encodings: []string{"utf-8"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEncoding)

	var encErr *core.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "latin.csv", encErr.Source)
	require.Len(t, encErr.Attempts, 1)
	assert.Equal(t, "utf-8", encErr.Attempts[0].Encoding)
	assert.Equal(t, "FILE003", core.MapError(err).Code)
}

func TestLoad_UTF8BOM(t *testing.T) {
	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("\xef\xbb\xbfid,name\n1,x\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Table.ColumnNames())
}

func TestChunks_UnknownEncodingFailsBeforeIO(t *testing.T) {
	_, err := newTestLoader().Chunks(context.Background(), core.LoadRequest{
		Sources:   []core.Source{{Path: "/does/not/matter.csv"}},
		Encodings: []string{"klingon"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown encoding "klingon"`)
}

func TestChunks_SourceNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.csv")

	_, err := newTestLoader().Chunks(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Path: missing}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSourceNotFound)

	var nf *core.SourceNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, missing, nf.Path)
	assert.Equal(t, "FILE001", core.MapError(err).Code)
}

func TestChunks_SourceWithoutPathOrReader(t *testing.T) {
	_, err := newTestLoader().Chunks(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Name: "nothing.csv"}},
	})
	require.Error(t, err)
	assert.Equal(t, "FILE002", core.MapError(err).Code)
}

func numbersCSV(n int) string {
	var sb strings.Builder
	sb.WriteString("id,score,flag,label\n")
	for i := 1; i <= n; i++ {
		score := fmt.Sprintf("%.1f", float64(i)*1.5)
		if i%7 == 0 {
			score = "n/a"
		}
		fmt.Fprintf(&sb, "%d,%s,%t,row %d\n", i, score, i%2 == 0, i)
	}
	return sb.String()
}

func TestChunks_ChunkedEqualsUnchunked(t *testing.T) {
	data := numbersCSV(25)
	req := func(chunk int) core.LoadRequest {
		return core.LoadRequest{
			Sources: []core.Source{csvSource(data)},
			Types: map[string]core.FieldType{
				"id":    core.FieldInteger,
				"score": core.FieldFloat,
				"flag":  core.FieldBool,
			},
			ChunkSize: chunk,
		}
	}
	l := newTestLoader()

	whole, err := l.Load(context.Background(), req(0))
	require.NoError(t, err)
	require.Equal(t, 25, whole.RowCount())

	it, err := l.Chunks(context.Background(), req(4))
	require.NoError(t, err)
	defer it.Close()

	var chunks []*core.Table
	for it.Next() {
		assert.Equal(t, 0, it.SourceIndex())
		chunks = append(chunks, it.Chunk())
	}
	require.NoError(t, it.Err())
	require.Len(t, chunks, 7)
	for _, c := range chunks[:6] {
		assert.Equal(t, 4, c.NumRows())
	}
	assert.Equal(t, 1, chunks[6].NumRows())

	joined, err := core.Concat(chunks, core.ConcatStrict)
	require.NoError(t, err)
	assert.True(t, whole.Table.Equal(joined))

	chunked, err := l.Load(context.Background(), req(4))
	require.NoError(t, err)
	assert.True(t, whole.Table.Equal(chunked.Table))
	assert.Equal(t, whole.Diag.Coerced, chunked.Diag.Coerced)
	assert.Equal(t, 3, chunked.Diag.Coerced)
	assert.Equal(t, 3, it.Result().Diag.Coerced)
}

func TestChunks_InferenceIndependentOfChunkSize(t *testing.T) {
	data := "a,b,c\n1,x,yes\n2,y,no\n3.5,z,yes\n"
	l := newTestLoader()

	load := func(chunk int) *core.Table {
		res, err := l.Load(context.Background(), core.LoadRequest{
			Sources:    []core.Source{csvSource(data)},
			InferTypes: true,
			ChunkSize:  chunk,
		})
		require.NoError(t, err)
		return res.Table
	}

	whole := load(0)
	col, ok := whole.Column("a")
	require.True(t, ok)
	assert.Equal(t, core.FieldFloat, col.Type)
	c, ok := whole.Column("c")
	require.True(t, ok)
	assert.Equal(t, core.FieldBool, c.Type)
	b, ok := whole.Column("b")
	require.True(t, ok)
	assert.Equal(t, core.FieldText, b.Type)

	assert.True(t, whole.Equal(load(1)))
}

func TestChunks_ExhaustionContract(t *testing.T) {
	it, err := newTestLoader().Chunks(context.Background(), core.LoadRequest{
		Sources:   []core.Source{csvSource("a\n1\n2\n3\n")},
		ChunkSize: 2,
	})
	require.NoError(t, err)

	count := 0
	for it.Next() {
		count++
	}
	assert.Equal(t, 2, count)
	assert.False(t, it.Next())
	assert.False(t, it.Next())
	assert.Nil(t, it.Chunk())
	assert.NoError(t, it.Err())
	assert.NoError(t, it.Close())
	assert.NoError(t, it.Close())

	res := it.Result()
	assert.Nil(t, res.Table)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 3, res.Sources[0].Rows)
}

func TestChunks_CloseEarly(t *testing.T) {
	it, err := newTestLoader().Chunks(context.Background(), core.LoadRequest{
		Sources:   []core.Source{csvSource(numbersCSV(10))},
		ChunkSize: 3,
	})
	require.NoError(t, err)

	require.True(t, it.Next())
	require.NoError(t, it.Close())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}

func TestChunks_CloseEarlyLogsClosed(t *testing.T) {
	var logs bytes.Buffer
	l := New(WithLogger(logging.New(&logs, "debug", "json")))
	it, err := l.Chunks(context.Background(), core.LoadRequest{
		Sources:   []core.Source{csvSource(numbersCSV(10))},
		ChunkSize: 3,
	})
	require.NoError(t, err)

	require.True(t, it.Next())
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())

	assert.Equal(t, 1, strings.Count(logs.String(), `"msg":"load closed early"`))
	assert.NotContains(t, logs.String(), `"msg":"load completed"`)
}

func TestChunks_LogsProgress(t *testing.T) {
	var logs bytes.Buffer
	l := New(WithLogger(logging.New(&logs, "debug", "json")))
	path := writeFile(t, "numbers.csv", []byte(numbersCSV(5)))

	res, err := l.Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Path: path}},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.RowCount())
	assert.Contains(t, logs.String(), `"msg":"chunk read"`)
	assert.Contains(t, logs.String(), `"progress":100`)
	assert.Contains(t, logs.String(), `"msg":"load completed"`)
	assert.NotContains(t, logs.String(), `"msg":"load closed early"`)
}

func TestChunks_EmptySourceYieldsColumns(t *testing.T) {
	it, err := newTestLoader().Chunks(context.Background(), core.LoadRequest{
		Sources:   []core.Source{csvSource("id,name\n")},
		ChunkSize: 10,
	})
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	assert.Equal(t, 0, it.Chunk().NumRows())
	assert.Equal(t, []string{"id", "name"}, it.Chunk().ColumnNames())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}

func TestLoad_EmptyFileFails(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("")},
	})
	require.Error(t, err)
	assert.Equal(t, "FILE005", core.MapError(err).Code)
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLoader().Load(ctx, core.LoadRequest{
		Sources: []core.Source{csvSource("a\n1\n")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "LOAD001", core.MapError(err).Code)
}

func TestLoad_MultipleSources(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "b.csv")
	other := filepath.Join(dir, "c.csv")
	require.NoError(t, os.WriteFile(first, []byte("id,v\n1,10\n2,20\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("id,v\n3,30\n"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("id,w\n4,x\n"), 0o644))

	l := newTestLoader()
	types := map[string]core.FieldType{"id": core.FieldInteger}

	t.Run("same columns", func(t *testing.T) {
		res, err := l.Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Path: first}, {Path: second}},
			Types:   types,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, res.RowCount())
		assert.Equal(t, []core.Value{core.Int(1), core.Int(2), core.Int(3)}, column(t, res.Table, "id"))
		require.Len(t, res.Sources, 2)
		assert.Equal(t, 2, res.Sources[0].Rows)
		assert.Equal(t, 1, res.Sources[1].Rows)
	})

	t.Run("mismatch is fatal", func(t *testing.T) {
		_, err := l.Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Path: first}, {Path: other}},
			Types:   types,
		})
		require.Error(t, err)
		var mismatch *core.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, []string{"v"}, mismatch.Missing)
		assert.Equal(t, []string{"w"}, mismatch.Extra)
	})

	t.Run("union pads", func(t *testing.T) {
		res, err := l.Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Path: first}, {Path: other}},
			Types:   types,
			Concat:  core.ConcatUnion,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "v", "w"}, res.Table.ColumnNames())
		assert.Equal(t, []core.Value{core.Missing, core.Missing, core.Text("x")}, column(t, res.Table, "w"))
	})

	t.Run("chunks never span sources", func(t *testing.T) {
		it, err := l.Chunks(context.Background(), core.LoadRequest{
			Sources:   []core.Source{{Path: first}, {Path: second}},
			ChunkSize: 5,
		})
		require.NoError(t, err)
		defer it.Close()

		var sizes, sources []int
		for it.Next() {
			sizes = append(sizes, it.Chunk().NumRows())
			sources = append(sources, it.SourceIndex())
		}
		require.NoError(t, it.Err())
		assert.Equal(t, []int{2, 1}, sizes)
		assert.Equal(t, []int{0, 1}, sources)
	})
}

func TestLoad_CompressedSources(t *testing.T) {
	const data = "name,age\nAlice,30\nBob,25\n"

	compress := map[string]func(w io.Writer) io.WriteCloser{
		"people.csv.gz": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		"people.csv.zst": func(w io.Writer) io.WriteCloser {
			enc, err := zstd.NewWriter(w)
			require.NoError(t, err)
			return enc
		},
		"people.csv.xz": func(w io.Writer) io.WriteCloser {
			xw, err := xz.NewWriter(w)
			require.NoError(t, err)
			return xw
		},
	}

	for name, newWriter := range compress {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			w := newWriter(&buf)
			_, err := io.WriteString(w, data)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			path := writeFile(t, name, buf.Bytes())

			res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
				Sources: []core.Source{{Path: path}},
				Types:   map[string]core.FieldType{"age": core.FieldInteger},
			})
			require.NoError(t, err)
			assert.Equal(t, []core.Value{core.Int(30), core.Int(25)}, column(t, res.Table, "age"))
			assert.Positive(t, res.Sources[0].BytesRead)
		})
	}

	t.Run("people.csv.bz2", func(t *testing.T) {
		res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Path: filepath.Join("testdata", "people.csv.bz2")}},
		})
		require.NoError(t, err)
		assert.Equal(t, []core.Value{core.Text("Alice"), core.Text("Bob")}, column(t, res.Table, "name"))
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		path := writeFile(t, "broken.csv.gz", []byte("not gzip at all"))
		_, err := newTestLoader().Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Path: path}},
		})
		require.Error(t, err)
		assert.Equal(t, "FILE006", core.MapError(err).Code)
	})
}

func TestLoad_JSONLines(t *testing.T) {
	data := strings.Join([]string{
		`{"id": 1, "name": "a", "tags": ["x"]}`,
		`not json`,
		`{"name": "b", "id": 2, "extra": true}`,
		``,
		`{"id": null, "name": "c"}`,
		`[1, 2]`,
	}, "\n")

	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Reader: strings.NewReader(data), Name: "events.jsonl"}},
		Types:   map[string]core.FieldType{"id": core.FieldInteger},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "tags"}, res.Table.ColumnNames())
	assert.Equal(t, []core.Value{core.Int(1), core.Int(2), core.Missing}, column(t, res.Table, "id"))
	assert.Equal(t, []core.Value{core.Text("a"), core.Text("b"), core.Text("c")}, column(t, res.Table, "name"))
	assert.Equal(t, []core.Value{core.Text(`["x"]`), core.Missing, core.Missing}, column(t, res.Table, "tags"))

	assert.Equal(t, 2, res.Diag.Skipped)
	assert.Equal(t, 0, res.Diag.Coerced)
	assert.Equal(t, 1, res.Diag.ExtraFields)
	assert.Equal(t, core.FormatJSONL, res.Sources[0].Format)
	require.Len(t, res.Diag.Issues, 2)
	assert.Equal(t, 2, res.Diag.Issues[0].LineNumber)
	assert.Equal(t, 6, res.Diag.Issues[1].LineNumber)
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"name", "age"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Alice", 30}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"Bob"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Reader: buf, Name: "people.xlsx"}},
		Types:   map[string]core.FieldType{"age": core.FieldInteger},
	})
	require.NoError(t, err)

	assert.Equal(t, "utf-8", res.Encoding())
	assert.Equal(t, core.FormatXLSX, res.Sources[0].Format)
	assert.Equal(t, []core.Value{core.Text("Alice"), core.Text("Bob")}, column(t, res.Table, "name"))
	assert.Equal(t, []core.Value{core.Int(30), core.Missing}, column(t, res.Table, "age"))
	assert.Equal(t, 0, res.DiagnosticCount())
}

func TestLoad_HeaderOptions(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		req     core.LoadRequest
		columns []string
		rows    int
	}{
		{
			name:    "skip rows",
			data:    "Quarterly report\nname,age\nAlice,30\n",
			req:     core.LoadRequest{SkipRows: 1},
			columns: []string{"name", "age"},
			rows:    1,
		},
		{
			name:    "find header",
			data:    "Generated,2024-01-01\nTotal,2\nName,Age\nAlice,30\nBob,25\n",
			req:     core.LoadRequest{FindHeader: []string{"name", "age"}},
			columns: []string{"Name", "Age"},
			rows:    2,
		},
		{
			name:    "no header",
			data:    "1,2\n3,4\n",
			req:     core.LoadRequest{NoHeader: true},
			columns: []string{"0", "1"},
			rows:    2,
		},
		{
			name:    "duplicate and blank names",
			data:    "a,a,\n1,2,3\n",
			columns: []string{"a", "a.1", "Unnamed: 2"},
			rows:    1,
		},
		{
			name:    "semicolon delimiter",
			data:    "a;b\n1;2\n",
			req:     core.LoadRequest{Delimiter: ';'},
			columns: []string{"a", "b"},
			rows:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Sources = []core.Source{csvSource(tt.data)}
			res, err := newTestLoader().Load(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.columns, res.Table.ColumnNames())
			assert.Equal(t, tt.rows, res.RowCount())
		})
	}

	t.Run("header not found", func(t *testing.T) {
		_, err := newTestLoader().Load(context.Background(), core.LoadRequest{
			Sources:    []core.Source{csvSource("x,y\n1,2\n")},
			FindHeader: []string{"name"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "header not found")
	})
}

func TestLoad_TSVKeepsTabDelimiter(t *testing.T) {
	l := newTestLoader(WithDefaults(Defaults{Delimiter: ';'}))
	res, err := l.Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Reader: strings.NewReader("a\tb\n1\t2\n"), Name: "data.tsv"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Table.ColumnNames())
}

func TestLoad_JSONLinesOverlongLineSkipped(t *testing.T) {
	data := `{"id": 1}` + "\n" +
		`{"id": "` + strings.Repeat("x", maxJSONLine) + `"}` + "\n" +
		`{"id": 3}` + "\n"

	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Reader: strings.NewReader(data), Name: "big.jsonl"}},
		Types:   map[string]core.FieldType{"id": core.FieldInteger},
	})
	require.NoError(t, err)

	assert.Equal(t, []core.Value{core.Int(1), core.Int(3)}, column(t, res.Table, "id"))
	assert.Equal(t, 1, res.Diag.Skipped)
	require.Len(t, res.Diag.Issues, 1)
	assert.Equal(t, 2, res.Diag.Issues[0].LineNumber)
	assert.Contains(t, res.Diag.Issues[0].Reason, "exceeds")
}

func TestLoad_MalformedRowsSkipped(t *testing.T) {
	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("a,b\n1,2\n3\n4,5\n6,7,8\n")},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowCount())
	assert.Equal(t, 2, res.Diag.Skipped)
	assert.Equal(t, 2, res.Sources[0].Skipped)
	require.Len(t, res.Diag.Issues, 2)
	assert.Equal(t, 3, res.Diag.Issues[0].LineNumber)
	assert.Equal(t, "expected 2 fields, got 1", res.Diag.Issues[0].Reason)
}

func TestLoad_NullTokensAndCleanCells(t *testing.T) {
	res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources:    []core.Source{csvSource("id,amount\n=\"001\",NA\n2,\"$1,200.50\"\n3,\n")},
		Types:      map[string]core.FieldType{"amount": core.FieldFloat},
		NullTokens: []string{"NA"},
		CleanCells: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []core.Value{core.Text("001"), core.Text("2"), core.Text("3")}, column(t, res.Table, "id"))
	assert.Equal(t, []core.Value{core.Missing, core.Float(1200.5), core.Missing}, column(t, res.Table, "amount"))
	assert.Equal(t, 0, res.DiagnosticCount())
}

func TestLoad_MaxIssues(t *testing.T) {
	res, err := newTestLoader(WithDefaults(Defaults{MaxIssues: 2})).Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("n\nx\ny\nz\nw\n")},
		Types:   map[string]core.FieldType{"n": core.FieldInteger},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Diag.Coerced)
	assert.Len(t, res.Diag.Issues, 2)
}

func TestLoad_StreamSources(t *testing.T) {
	const data = "a,b\n1,2\n"

	t.Run("non-seekable stream is buffered", func(t *testing.T) {
		res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Reader: iotest.OneByteReader(strings.NewReader(data))}},
		})
		require.NoError(t, err)
		assert.Equal(t, "<stream>", res.Path())
		assert.Equal(t, 1, res.RowCount())
	})

	t.Run("seekable stream is rewound to its start", func(t *testing.T) {
		r := strings.NewReader("garbage\n" + data)
		_, err := r.Seek(int64(len("garbage\n")), io.SeekStart)
		require.NoError(t, err)

		res, err := newTestLoader().Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Reader: r, Name: "tail.csv"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, res.Table.ColumnNames())
	})

	t.Run("oversized stream", func(t *testing.T) {
		l := newTestLoader(WithDefaults(Defaults{MaxStreamBytes: 4}))
		_, err := l.Load(context.Background(), core.LoadRequest{
			Sources: []core.Source{{Reader: iotest.OneByteReader(strings.NewReader(data))}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stream exceeds 4 bytes")
		assert.Equal(t, "FILE004", core.MapError(err).Code)
	})
}

func TestLoad_Duration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	res, err := newTestLoader(WithClock(clock)).Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("a\n1\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), res.Duration)
}

func TestNewFromConfig(t *testing.T) {
	l, err := NewFromConfig(config.LoaderConfig{
		Encodings:      []string{"utf-8", "cp1252"},
		ChunkSize:      50,
		Delimiter:      "tab",
		NullTokens:     []string{"-"},
		MaxIssues:      10,
		MaxStreamBytes: 1 << 20,
	})
	require.NoError(t, err)
	d := l.Defaults()

	assert.Equal(t, []string{"utf-8", "cp1252"}, d.Encodings)
	assert.Equal(t, '\t', d.Delimiter)
	assert.Equal(t, 50, d.ChunkSize)
	assert.Equal(t, DefaultInferSampleRows, d.InferSampleRows)
	assert.Equal(t, DefaultHeaderSearchRows, d.HeaderSearchRows)

	res, err := l.Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("a\tb\n1\t-\n")},
		Types:   map[string]core.FieldType{"b": core.FieldInteger},
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Value{core.Missing}, column(t, res.Table, "b"))
	assert.Equal(t, 0, res.DiagnosticCount())
}

func TestNewFromConfig_ColumnTypes(t *testing.T) {
	l, err := NewFromConfig(config.LoaderConfig{Types: []string{"a:int", "b:float"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]core.FieldType{"a": core.FieldInteger, "b": core.FieldFloat}, l.Defaults().Types)

	reqTypes := map[string]core.FieldType{"b": core.FieldText}
	res, err := l.Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{csvSource("a,b,c\n1,2.5,x\n")},
		Types:   reqTypes,
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Value{core.Int(1)}, column(t, res.Table, "a"))
	assert.Equal(t, []core.Value{core.Text("2.5")}, column(t, res.Table, "b"), "request types win")
	assert.Equal(t, map[string]core.FieldType{"b": core.FieldText}, reqTypes, "request map is not modified")

	_, err = NewFromConfig(config.LoaderConfig{Types: []string{"a:money"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "money")
}

func TestLoad_ErrorsAreWrapped(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), core.LoadRequest{
		Sources: []core.Source{{Reader: strings.NewReader("a\n1\n"), Format: "parquet"}},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrEncoding))
	assert.Equal(t, "FILE002", core.MapError(err).Code)
}
