package core

import (
	"fmt"
	"strings"
)

// Column is a named, typed sequence of values.
type Column struct {
	Name       string
	Type       FieldType
	Values     []Value
	Categories []string // Levels of a categorical column in first-seen order
}

// NewColumn creates a column. For categorical columns the levels are
// collected from values when not given explicitly.
func NewColumn(name string, ft FieldType, values []Value) *Column {
	c := &Column{Name: name, Type: ft, Values: values}
	if ft == FieldCategorical {
		c.Categories = collectCategories(nil, values)
	}
	return c
}

// Len returns the number of values in the column.
func (c *Column) Len() int { return len(c.Values) }

// clone returns a deep copy of the column header and a copy of the values slice.
func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Type: c.Type}
	out.Values = append([]Value(nil), c.Values...)
	out.Categories = append([]string(nil), c.Categories...)
	return out
}

func collectCategories(levels []string, values []Value) []string {
	seen := make(map[string]bool, len(levels))
	for _, l := range levels {
		seen[l] = true
	}
	for _, v := range values {
		s, ok := v.Str()
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		levels = append(levels, s)
	}
	return levels
}

// Table is an ordered set of equal-length, uniquely named columns.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewTable assembles columns into a Table.
// Returns an error if names repeat or lengths differ.
func NewTable(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		if i > 0 && c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", c.Name, c.Len(), t.rows)
		}
		t.index[c.Name] = i
		t.columns = append(t.columns, c)
		t.rows = c.Len()
	}
	return t, nil
}

// MustTable is NewTable that panics on error. Intended for tests and literals.
func MustTable(cols ...*Column) *Table {
	t, err := NewTable(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.columns) }

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) { return t.rows, len(t.columns) }

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column { return t.columns }

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Values[i]
	}
	return row
}

// Rows returns every row. Intended for small tables and tests.
func (t *Table) Rows() [][]Value {
	out := make([][]Value, t.rows)
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// Equal reports whether two tables have the same columns, types and values.
func (t *Table) Equal(o *Table) bool {
	if t.rows != o.rows || len(t.columns) != len(o.columns) {
		return false
	}
	for i, c := range t.columns {
		oc := o.columns[i]
		if c.Name != oc.Name || c.Type != oc.Type {
			return false
		}
		for j := range c.Values {
			if !c.Values[j].Equal(oc.Values[j]) {
				return false
			}
		}
	}
	return true
}

// String returns a short description such as "Table[3x2](id, amount)".
func (t *Table) String() string {
	return fmt.Sprintf("Table[%dx%d](%s)", t.rows, len(t.columns), strings.Join(t.ColumnNames(), ", "))
}

// Builder appends rows to a fixed set of columns.
// It is how the loader assembles chunks.
type Builder struct {
	cols []*Column
}

// NewBuilder creates a builder for the given column specs.
func NewBuilder(specs []FieldSpec, capacity int) *Builder {
	b := &Builder{cols: make([]*Column, len(specs))}
	for i, s := range specs {
		b.cols[i] = &Column{
			Name:       s.Name,
			Type:       s.Type,
			Values:     make([]Value, 0, capacity),
			Categories: append([]string(nil), s.Categories...),
		}
	}
	return b
}

// Append adds one row. len(row) must equal the number of columns.
func (b *Builder) Append(row []Value) {
	for i, c := range b.cols {
		c.Values = append(c.Values, row[i])
	}
}

// Len returns the number of rows appended so far.
func (b *Builder) Len() int {
	if len(b.cols) == 0 {
		return 0
	}
	return b.cols[0].Len()
}

// Build returns the table. The builder must not be used afterwards.
func (b *Builder) Build() *Table {
	for _, c := range b.cols {
		if c.Type == FieldCategorical {
			c.Categories = collectCategories(c.Categories, c.Values)
		}
	}
	t, err := NewTable(b.cols...)
	if err != nil {
		// Builder only produces equal-length columns from unique specs.
		panic(err)
	}
	return t
}
