// Package table provides the in-memory row and table types shared by all
// pipeline layers. Values are plain Go types after coercion: string, float64,
// bool, time.Time, or nil for SQL NULL.
package table

import (
	"fmt"
	"sort"
	"time"
)

// Row maps a column name to its typed value.
type Row map[string]any

// Clone returns a deep-enough copy of the row. Values are immutable scalar
// types, so a shallow map copy is sufficient.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the value of a column as a string, or "" if absent or NULL.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Time returns the value of a column as a time.Time. The second return value
// is false if the column is absent, NULL, or not a timestamp.
func (r Row) Time(col string) (time.Time, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// Float returns the value of a column as a float64. The second return value
// is false if the column is absent, NULL, or not numeric.
func (r Row) Float(col string) (float64, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Table is an ordered set of columns plus rows. Column order is the contract
// order and determines the on-disk column order.
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds a row to the table.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn returns true if the table declares the column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// SortBy sorts rows by the given columns ascending, NULLs first. The sort is
// total when the key columns form a unique key, which every persisted table
// guarantees, so output ordering is reproducible across runs.
func (t *Table) SortBy(columns ...string) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		for _, col := range columns {
			c := compareValues(t.Rows[i][col], t.Rows[j][col])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv, ok := b.(float64)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			break
		}
		switch {
		case !av && bv:
			return -1
		case av && !bv:
			return 1
		default:
			return 0
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			break
		}
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	}
	// Mixed types only happen on malformed input; fall back to string form.
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
