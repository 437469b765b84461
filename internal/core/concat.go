package core

import "sort"

// Concat stacks the rows of tables in order.
//
// With ConcatStrict every table must have the same column name set as the
// first one, otherwise a *SchemaMismatchError is returned. With ConcatUnion
// absent columns are padded with Missing. Output columns follow the first
// table's order, and union mode appends new names in order of first
// appearance.
//
// Column types are reconciled: equal types are kept, integer and float
// widen to float, categorical levels are merged, and any other mix falls
// back to text.
//
// The result never shares storage with the inputs, even for a single table.
func Concat(tables []*Table, policy ConcatPolicy) (*Table, error) {
	if len(tables) == 0 {
		return MustTable(), nil
	}
	if len(tables) == 1 {
		cols := make([]*Column, len(tables[0].columns))
		for i, c := range tables[0].columns {
			cols[i] = c.clone()
		}
		return NewTable(cols...)
	}

	var names []string
	seen := make(map[string]bool)
	for _, c := range tables[0].columns {
		names = append(names, c.Name)
		seen[c.Name] = true
	}

	for i, t := range tables[1:] {
		missing, extra := diffColumns(tables[0], t)
		if policy == ConcatStrict && (len(missing) > 0 || len(extra) > 0) {
			return nil, &SchemaMismatchError{Index: i + 1, Missing: missing, Extra: extra}
		}
		for _, c := range t.columns {
			if !seen[c.Name] {
				seen[c.Name] = true
				names = append(names, c.Name)
			}
		}
	}

	total := 0
	for _, t := range tables {
		total += t.rows
	}

	out := make([]*Column, len(names))
	for i, name := range names {
		ft, levels := reconcileType(tables, name)
		col := &Column{Name: name, Type: ft, Values: make([]Value, 0, total), Categories: levels}
		for _, t := range tables {
			src, ok := t.Column(name)
			if !ok {
				for range t.rows {
					col.Values = append(col.Values, Missing)
				}
				continue
			}
			if src.Type == ft {
				col.Values = append(col.Values, src.Values...)
				continue
			}
			for _, v := range src.Values {
				col.Values = append(col.Values, convertValue(v, ft))
			}
		}
		out[i] = col
	}

	return NewTable(out...)
}

// diffColumns returns the names of a that b lacks, and the names of b that a lacks.
func diffColumns(a, b *Table) (missing, extra []string) {
	for _, c := range a.columns {
		if _, ok := b.index[c.Name]; !ok {
			missing = append(missing, c.Name)
		}
	}
	for _, c := range b.columns {
		if _, ok := a.index[c.Name]; !ok {
			extra = append(extra, c.Name)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// reconcileType picks the output type of a column across tables.
func reconcileType(tables []*Table, name string) (FieldType, []string) {
	var (
		ft     FieldType
		levels []string
		found  bool
	)
	for _, t := range tables {
		c, ok := t.Column(name)
		if !ok {
			continue
		}
		switch {
		case !found:
			ft, found = c.Type, true
		case c.Type == ft:
		case isNumeric(ft) && isNumeric(c.Type):
			ft = FieldFloat
		default:
			ft = FieldText
		}
		if c.Type == FieldCategorical {
			levels = mergeLevels(levels, c.Categories)
		}
	}
	if ft != FieldCategorical {
		levels = nil
	}
	return ft, levels
}

func mergeLevels(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, l := range a {
		seen[l] = true
	}
	for _, l := range b {
		if !seen[l] {
			seen[l] = true
			a = append(a, l)
		}
	}
	return a
}

func isNumeric(ft FieldType) bool {
	return ft == FieldInteger || ft == FieldFloat
}

// convertValue widens a value to ft. Only the conversions chosen by
// reconcileType are needed: numeric to float, and anything to text.
func convertValue(v Value, ft FieldType) Value {
	if v.IsMissing() {
		return Missing
	}
	switch ft {
	case FieldFloat:
		if f, ok := v.Float64(); ok {
			return Float(f)
		}
	case FieldText:
		return Text(v.String())
	}
	return v
}
