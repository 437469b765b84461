// Package pgcopy writes loaded tables into PostgreSQL with COPY.
//
// Column types map to BIGINT, DOUBLE PRECISION, BOOLEAN, TIMESTAMPTZ and
// TEXT. Missing values are sent as NULL.
package pgcopy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/loader"
	"github.com/JonMunkholm/tabload/internal/logging"
)

// DBTX is the subset of pgx used here. *pgx.Conn, *pgxpool.Pool and pgx.Tx
// all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Connect opens a pool from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		logging.FromContext(ctx).Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ColumnName converts a display column name to a database column name.
// "Transaction ID" -> "transaction_id"
func ColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// SQLType returns the PostgreSQL type used for a column type.
func SQLType(ft core.FieldType) string {
	switch ft {
	case core.FieldInteger:
		return "BIGINT"
	case core.FieldFloat:
		return "DOUBLE PRECISION"
	case core.FieldBool:
		return "BOOLEAN"
	case core.FieldTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// CreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement for t.
func CreateTableSQL(name string, t *core.Table) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(quoteIdentifier(name))
	sb.WriteString(" (\n")
	for i, c := range t.Columns() {
		if i > 0 {
			sb.WriteString(",\n")
		}
		fmt.Fprintf(&sb, "\t%s %s", quoteIdentifier(ColumnName(c.Name)), SQLType(c.Type))
	}
	sb.WriteString("\n)")
	return sb.String()
}

// CreateTable creates the destination table for t if it does not exist.
func CreateTable(ctx context.Context, db DBTX, name string, t *core.Table) error {
	if _, err := db.Exec(ctx, CreateTableSQL(name, t)); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

// CopyTable copies every row of t into the named table and returns the
// number of rows written.
func CopyTable(ctx context.Context, db DBTX, name string, t *core.Table) (int64, error) {
	cols := t.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = ColumnName(c.Name)
	}

	src := pgx.CopyFromSlice(t.NumRows(), func(i int) ([]any, error) {
		row := make([]any, len(cols))
		for j, c := range cols {
			v, err := pgValue(c.Type, c.Values[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, c.Name, err)
			}
			row[j] = v
		}
		return row, nil
	})

	n, err := db.CopyFrom(ctx, pgx.Identifier{name}, names, src)
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", name, err)
	}
	return n, nil
}

// CopyChunks drains it into the named table one chunk at a time, creating
// the table from the first chunk when create is set. The iterator is always
// closed.
func CopyChunks(ctx context.Context, db DBTX, name string, it *loader.ChunkIterator, create bool) (int64, error) {
	defer it.Close()

	var total int64
	first := true
	for it.Next() {
		chunk := it.Chunk()
		if first && create {
			if err := CreateTable(ctx, db, name, chunk); err != nil {
				return total, err
			}
		}
		first = false

		if chunk.NumRows() == 0 {
			continue
		}
		n, err := CopyTable(ctx, db, name, chunk)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, it.Err()
}

// pgValue converts a value to its pgtype form. Missing becomes an invalid
// (NULL) value of the column's type.
func pgValue(ft core.FieldType, v core.Value) (any, error) {
	switch ft {
	case core.FieldInteger:
		i, ok := v.Int64()
		if !ok && !v.IsMissing() {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		return pgtype.Int8{Int64: i, Valid: ok}, nil
	case core.FieldFloat:
		f, ok := v.Float64()
		if !ok && !v.IsMissing() {
			return nil, fmt.Errorf("%v is not a number", v)
		}
		return pgtype.Float8{Float64: f, Valid: ok}, nil
	case core.FieldBool:
		b, ok := v.Boolean()
		if !ok && !v.IsMissing() {
			return nil, fmt.Errorf("%v is not a boolean", v)
		}
		return pgtype.Bool{Bool: b, Valid: ok}, nil
	case core.FieldTimestamp:
		t, ok := v.Time()
		if !ok && !v.IsMissing() {
			return nil, fmt.Errorf("%v is not a timestamp", v)
		}
		return pgtype.Timestamptz{Time: t, Valid: ok}, nil
	default:
		if v.IsMissing() {
			return pgtype.Text{}, nil
		}
		return pgtype.Text{String: v.String(), Valid: true}, nil
	}
}
