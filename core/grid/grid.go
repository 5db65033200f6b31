// Package grid expands hyperparameter value lists into a flat job table.
package grid

import (
	"fmt"
)

// Axis is one named hyperparameter and its candidate values.
type Axis struct {
	Name   string
	Values []any
}

// Record is one combination of hyperparameter values, keyed by axis name.
type Record map[string]any

// Table is the expanded job table: one row per combination, columns in the
// order the axes were given.
type Table struct {
	Columns []string
	Rows    []Record
}

// Product expands the full cartesian product of the given axes, iterating
// the last axis fastest. Any axis with zero values yields an empty table;
// zero axes yield a single empty record.
func Product(axes ...Axis) Table {
	columns := make([]string, len(axes))
	total := 1
	for i, axis := range axes {
		columns[i] = axis.Name
		total *= len(axis.Values)
	}

	t := Table{Columns: columns}
	if total == 0 {
		return t
	}

	t.Rows = make([]Record, 0, total)
	indices := make([]int, len(axes))
	for {
		row := make(Record, len(axes))
		for i, axis := range axes {
			row[axis.Name] = axis.Values[indices[i]]
		}
		t.Rows = append(t.Rows, row)

		// Advance the odometer, last axis fastest.
		i := len(axes) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(axes[i].Values) {
				break
			}
			indices[i] = 0
		}
		if i < 0 {
			return t
		}
	}
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Nunique returns the number of distinct values per column, comparing values
// by their printed representation.
func (t Table) Nunique() map[string]int {
	counts := make(map[string]int, len(t.Columns))
	for _, col := range t.Columns {
		seen := make(map[string]struct{})
		for _, row := range t.Rows {
			seen[fmt.Sprint(row[col])] = struct{}{}
		}
		counts[col] = len(seen)
	}
	return counts
}

// SetColumn assigns the same value to every row, appending the column if it
// is new. Used for submission-only fields like port and timeout.
func (t *Table) SetColumn(name string, value any) {
	if !t.hasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
	for _, row := range t.Rows {
		row[name] = value
	}
}

// DeriveColumn assigns a per-row value computed from the row, appending the
// column if it is new.
func (t *Table) DeriveColumn(name string, fn func(Record) any) {
	if !t.hasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
	for _, row := range t.Rows {
		row[name] = fn(row)
	}
}

// Filter returns the rows for which keep is true, preserving order.
func (t Table) Filter(keep func(Record) bool) Table {
	out := Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func (t Table) hasColumn(name string) bool {
	for _, col := range t.Columns {
		if col == name {
			return true
		}
	}
	return false
}
