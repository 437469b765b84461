package core

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Head returns the first n rows. A negative or oversized n returns every row.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > t.rows {
		n = t.rows
	}
	return t.take(func(yield func(int)) {
		for i := range n {
			yield(i)
		}
	}, n)
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("select: unknown column %q", name)
		}
		cols = append(cols, c.clone())
	}
	return NewTable(cols...)
}

// Filter returns the rows for which keep returns true. The row passed to
// keep is indexed like ColumnNames.
func (t *Table) Filter(keep func(row []Value) bool) *Table {
	var idx []int
	for i := range t.rows {
		if keep(t.Row(i)) {
			idx = append(idx, i)
		}
	}
	return t.takeIndices(idx)
}

// WithColumn returns a table with col added, or replacing a column of the
// same name in place.
func (t *Table) WithColumn(col *Column) (*Table, error) {
	if len(t.columns) > 0 && col.Len() != t.rows {
		return nil, fmt.Errorf("with column %q: has %d values, expected %d", col.Name, col.Len(), t.rows)
	}
	cols := make([]*Column, 0, len(t.columns)+1)
	replaced := false
	for _, c := range t.columns {
		if c.Name == col.Name {
			cols = append(cols, col)
			replaced = true
			continue
		}
		cols = append(cols, c.clone())
	}
	if !replaced {
		cols = append(cols, col)
	}
	return NewTable(cols...)
}

// SortBy returns the rows ordered by the named column. The sort is stable,
// and missing values go last in both directions.
func (t *Table) SortBy(name string, desc bool) (*Table, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("sort: unknown column %q", name)
	}
	idx := make([]int, t.rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := c.Values[idx[a]], c.Values[idx[b]]
		if va.IsMissing() || vb.IsMissing() {
			return !va.IsMissing() && vb.IsMissing()
		}
		if desc {
			return compare(va, vb) > 0
		}
		return compare(va, vb) < 0
	})
	return t.takeIndices(idx), nil
}

// IdxMax returns the row index holding the largest value of the named
// column. ok is false when the column is absent or entirely missing.
func (t *Table) IdxMax(name string) (int, bool) {
	c, found := t.Column(name)
	if !found {
		return 0, false
	}
	best := -1
	for i, v := range c.Values {
		if v.IsMissing() {
			continue
		}
		if best < 0 || compare(v, c.Values[best]) > 0 {
			best = i
		}
	}
	return best, best >= 0
}

// ValueCounts counts the non-missing values of a column. The result has the
// columns (name, "count"), ordered by descending count then first appearance.
func (t *Table) ValueCounts(name string) (*Table, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("value counts: unknown column %q", name)
	}

	var keys []Value
	counts := make(map[string]int64)
	for _, v := range c.Values {
		if v.IsMissing() {
			continue
		}
		k := v.String()
		if _, seen := counts[k]; !seen {
			keys = append(keys, v)
		}
		counts[k]++
	}
	sort.SliceStable(keys, func(a, b int) bool {
		return counts[keys[a].String()] > counts[keys[b].String()]
	})

	vals := make([]Value, len(keys))
	cnts := make([]Value, len(keys))
	for i, k := range keys {
		vals[i] = k
		cnts[i] = Int(counts[k.String()])
	}
	return NewTable(
		&Column{Name: c.Name, Type: c.Type, Values: vals, Categories: slices.Clone(c.Categories)},
		NewColumn("count", FieldInteger, cnts),
	)
}

// Grouping is a table partitioned by the values of one key column.
type Grouping struct {
	t      *Table
	key    *Column
	order  []string
	groups map[string][]int
	first  map[string]Value
}

// GroupBy partitions rows by the named key column. Rows with a missing key
// are dropped.
func (t *Table) GroupBy(key string) (*Grouping, error) {
	c, ok := t.Column(key)
	if !ok {
		return nil, fmt.Errorf("group by: unknown column %q", key)
	}
	g := &Grouping{t: t, key: c, groups: make(map[string][]int), first: make(map[string]Value)}
	for i, v := range c.Values {
		if v.IsMissing() {
			continue
		}
		k := v.String()
		if _, seen := g.groups[k]; !seen {
			g.order = append(g.order, k)
			g.first[k] = v
		}
		g.groups[k] = append(g.groups[k], i)
	}
	return g, nil
}

// Mean averages a numeric column per group. The result has the columns
// (key, col) ordered by descending mean. Groups with no numeric values get
// a missing mean and sort last.
func (g *Grouping) Mean(col string) (*Table, error) {
	c, ok := g.t.Column(col)
	if !ok {
		return nil, fmt.Errorf("mean: unknown column %q", col)
	}
	if !isNumeric(c.Type) {
		return nil, fmt.Errorf("mean: column %q is %s, not numeric", col, c.Type)
	}

	keys := make([]Value, len(g.order))
	means := make([]Value, len(g.order))
	for i, k := range g.order {
		keys[i] = g.first[k]
		sum, n := 0.0, 0
		for _, row := range g.groups[k] {
			if f, ok := c.Values[row].Float64(); ok {
				sum += f
				n++
			}
		}
		if n > 0 {
			means[i] = Float(sum / float64(n))
		}
	}

	out, err := NewTable(
		&Column{Name: g.key.Name, Type: g.key.Type, Values: keys, Categories: slices.Clone(g.key.Categories)},
		NewColumn(c.Name, FieldFloat, means),
	)
	if err != nil {
		return nil, err
	}
	return out.SortBy(c.Name, true)
}

// Describe summarizes every numeric column with count, mean, std, min and
// max. The first column, "statistic", names each row. std is the sample
// standard deviation.
func (t *Table) Describe() *Table {
	stats := []string{"count", "mean", "std", "min", "max"}
	labels := make([]Value, len(stats))
	for i, s := range stats {
		labels[i] = Text(s)
	}
	cols := []*Column{NewColumn("statistic", FieldText, labels)}

	for _, c := range t.columns {
		if !isNumeric(c.Type) {
			continue
		}
		var xs []float64
		for _, v := range c.Values {
			if f, ok := v.Float64(); ok {
				xs = append(xs, f)
			}
		}
		vals := []Value{Float(float64(len(xs))), Missing, Missing, Missing, Missing}
		if len(xs) > 0 {
			mean, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
			for _, x := range xs {
				mean += x
				lo = math.Min(lo, x)
				hi = math.Max(hi, x)
			}
			mean /= float64(len(xs))
			vals[1], vals[3], vals[4] = Float(mean), Float(lo), Float(hi)
			if len(xs) > 1 {
				ss := 0.0
				for _, x := range xs {
					ss += (x - mean) * (x - mean)
				}
				vals[2] = Float(math.Sqrt(ss / float64(len(xs)-1)))
			}
		}
		cols = append(cols, NewColumn(c.Name, FieldFloat, vals))
	}
	return MustTable(cols...)
}

// takeIndices copies the given rows, in order, into a new table.
func (t *Table) takeIndices(idx []int) *Table {
	return t.take(func(yield func(int)) {
		for _, i := range idx {
			yield(i)
		}
	}, len(idx))
}

func (t *Table) take(each func(yield func(int)), n int) *Table {
	cols := make([]*Column, len(t.columns))
	for j, c := range t.columns {
		nc := &Column{Name: c.Name, Type: c.Type, Values: make([]Value, 0, n), Categories: slices.Clone(c.Categories)}
		each(func(i int) { nc.Values = append(nc.Values, c.Values[i]) })
		cols[j] = nc
	}
	return MustTable(cols...)
}
