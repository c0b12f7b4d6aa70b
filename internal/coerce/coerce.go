// Package coerce converts raw source fields to numbers under an explicit
// defaulting policy: count-like fields that are missing or unparsable become
// zero, and every such default is counted so it can be reported.
package coerce

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// missingMarkers are placeholder values that mean "no value" in the source files.
var missingMarkers = map[string]bool{
	"":    true,
	"-":   true,
	"nan": true,
	"NaN": true,
	"NA":  true,
	"n/a": true,
}

// Float parses s as a float64. Decimal commas ("12,5") are accepted when no
// dot is present. ok is false when s is missing or unparsable, in which case
// the returned value is 0.
func Float(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if missingMarkers[s] {
		return 0, false
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Count parses s as a non-fractional count. Whole-valued floats such as
// "120.0" are accepted since spreadsheet exports often write counts that
// way. Missing, unparsable or fractional values yield 0 with ok=false.
func Count(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if missingMarkers[s] {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, ok := Float(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// OptionalFloat parses a measurement that has no meaningful default. Missing
// or unparsable values return nil and are stored as NULL.
func OptionalFloat(s string) *float64 {
	v, ok := Float(s)
	if !ok {
		return nil
	}
	return &v
}

// Text trims surrounding whitespace and quotes from a text field.
func Text(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// Tally counts the values that were defaulted, per column.
type Tally map[string]int

// Add records one default for each of columns.
func (t Tally) Add(columns ...string) {
	for _, c := range columns {
		t[c]++
	}
}

// Defaulted lists the columns of a single row that fell back to zero.
type Defaulted []string

// Count coerces s and notes column when the default was applied.
func (d *Defaulted) Count(column, s string) int64 {
	v, ok := Count(s)
	if !ok {
		*d = append(*d, column)
	}
	return v
}

// Float coerces s and notes column when the default was applied.
func (d *Defaulted) Float(column, s string) float64 {
	v, ok := Float(s)
	if !ok {
		*d = append(*d, column)
	}
	return v
}

// Total returns the number of defaults across all columns.
func (t Tally) Total() int {
	n := 0
	for _, v := range t {
		n += v
	}
	return n
}

// Columns returns the defaulted column names in sorted order.
func (t Tally) Columns() []string {
	cols := make([]string, 0, len(t))
	for c := range t {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
