// Package aggregate groups resolved records by district and reduces each
// group to per-district metrics.
package aggregate

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/normalize"
)

type reduceKind int

const (
	kindCount reduceKind = iota
	kindSum
	kindMean
	kindMin
	kindMax
	kindCountIf
)

// Reducer produces one output column. Value accessors report ok=false for a
// missing value, and the record is then skipped by that reducer.
type Reducer[T any] struct {
	Column string
	kind   reduceKind
	value  func(T) (float64, bool)
	pred   func(T) bool
}

// Count counts the records in each group.
func Count[T any](column string) Reducer[T] {
	return Reducer[T]{Column: column, kind: kindCount}
}

// Sum adds up the present values.
func Sum[T any](column string, v func(T) (float64, bool)) Reducer[T] {
	return Reducer[T]{Column: column, kind: kindSum, value: v}
}

// Mean averages the present values.
func Mean[T any](column string, v func(T) (float64, bool)) Reducer[T] {
	return Reducer[T]{Column: column, kind: kindMean, value: v}
}

// Min takes the smallest present value.
func Min[T any](column string, v func(T) (float64, bool)) Reducer[T] {
	return Reducer[T]{Column: column, kind: kindMin, value: v}
}

// Max takes the largest present value.
func Max[T any](column string, v func(T) (float64, bool)) Reducer[T] {
	return Reducer[T]{Column: column, kind: kindMax, value: v}
}

// CountIf counts the records matching pred.
func CountIf[T any](column string, pred func(T) bool) Reducer[T] {
	return Reducer[T]{Column: column, kind: kindCountIf, pred: pred}
}

// Group is the resolved records of one district.
type Group[T any] struct {
	District model.District
	Records  []T
}

// GroupBy partitions the resolved records by district ID, ordered by ID.
// Unresolved records are left out.
func GroupBy[T any](records []normalize.Record[T]) []Group[T] {
	idx := make(map[string]int)
	var groups []Group[T]
	for _, rec := range records {
		if !rec.Resolved {
			continue
		}
		i, ok := idx[rec.District.ID]
		if !ok {
			i = len(groups)
			idx[rec.District.ID] = i
			groups = append(groups, Group[T]{District: rec.District})
		}
		groups[i].Records = append(groups[i].Records, rec.Raw)
	}
	sort.Slice(groups, func(a, b int) bool {
		return groups[a].District.ID < groups[b].District.ID
	})
	return groups
}

// Row is one district's metrics. A column is absent from Values when the
// district had no present value for it (mean, min or max over nothing).
type Row struct {
	District model.District
	Records  int
	Values   map[string]float64
}

// Value returns the metric in column.
func (r Row) Value(column string) (float64, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Table is a wide per-district metrics table.
type Table struct {
	Columns []string
	Rows    []Row
}

// Aggregate reduces the resolved records to one row per district that has
// at least one record. Districts without records are omitted, not
// zero-filled.
func Aggregate[T any](records []normalize.Record[T], reducers ...Reducer[T]) *Table {
	t := &Table{Columns: make([]string, len(reducers))}
	for i, r := range reducers {
		t.Columns[i] = r.Column
	}

	for _, g := range GroupBy(records) {
		row := Row{District: g.District, Records: len(g.Records), Values: make(map[string]float64, len(reducers))}
		for _, r := range reducers {
			if v, ok := r.reduce(g.Records); ok {
				row.Values[r.Column] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (r Reducer[T]) reduce(records []T) (float64, bool) {
	switch r.kind {
	case kindCount:
		return float64(len(records)), true
	case kindCountIf:
		n := 0
		for _, rec := range records {
			if r.pred(rec) {
				n++
			}
		}
		return float64(n), true
	}

	vals := make([]float64, 0, len(records))
	for _, rec := range records {
		if v, ok := r.value(rec); ok {
			vals = append(vals, v)
		}
	}

	switch r.kind {
	case kindSum:
		return floats.Sum(vals), true
	case kindMean:
		if len(vals) == 0 {
			return 0, false
		}
		return stat.Mean(vals, nil), true
	case kindMin:
		if len(vals) == 0 {
			return 0, false
		}
		return floats.Min(vals), true
	case kindMax:
		if len(vals) == 0 {
			return 0, false
		}
		return floats.Max(vals), true
	}
	return 0, false
}

// Metrics returns the table in long form: one entry per (district, column)
// with a value, rows in table order and columns in reducer order.
func (t *Table) Metrics() []model.DistrictMetric {
	var out []model.DistrictMetric
	for _, row := range t.Rows {
		for _, c := range t.Columns {
			if v, ok := row.Values[c]; ok {
				out = append(out, model.DistrictMetric{District: row.District, Metric: c, Value: v})
			}
		}
	}
	return out
}

// Series returns one column as district metrics.
func (t *Table) Series(column string) []model.DistrictMetric {
	var out []model.DistrictMetric
	for _, row := range t.Rows {
		if v, ok := row.Values[column]; ok {
			out = append(out, model.DistrictMetric{District: row.District, Metric: column, Value: v})
		}
	}
	return out
}
