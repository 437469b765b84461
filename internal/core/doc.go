// Package core holds the in-memory data model for loaded tabular data.
//
// It has no I/O of its own beyond rendering. The loader package produces
// values of these types, and the pgcopy package consumes them.
//
// # Tables
//
// A [Table] is an ordered set of equal-length, uniquely named [Column]s.
// Each cell is a [Value], whose zero value is the missing-value marker
// [Missing]. A missing cell is distinct from a valid 0, false or "".
//
//	t := core.MustTable(
//	    core.NewColumn("name", core.FieldText, []core.Value{core.Text("Alice"), core.Text("Bob")}),
//	    core.NewColumn("age", core.FieldInteger, []core.Value{core.Int(25), core.Missing}),
//	)
//
// # Coercion
//
// [Coerce] converts raw cell text to a [FieldType]. It never fails hard: a
// value that cannot be converted becomes Missing and the caller is told so
// it can count the failure. Empty cells and configured null tokens are
// Missing without counting as failures.
//
// # Combining and querying
//
// [Concat] stacks tables with either strict or union column handling.
// Head, Select, Filter, WithColumn, SortBy, IdxMax, ValueCounts, GroupBy
// and Describe return new tables and never mutate their receiver.
//
// # Error Handling
//
// Load failures are typed ([SourceNotFoundError], [EncodingError],
// [SchemaMismatchError]) and match the sentinels [ErrSourceNotFound],
// [ErrEncoding] and [ErrSchemaMismatch] through errors.Is. [MapError]
// turns them into a [UserMessage] with a support code:
//
//   - FILE001-FILE006: Source errors (not found, format, encoding, size)
//   - SCH001-SCH002: Column errors
//   - DB001-DB008: Errors from the PostgreSQL copy sink
//   - LOAD001-LOAD002: Cancellation and deadlines
package core
