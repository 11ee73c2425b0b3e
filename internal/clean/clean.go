// Package clean implements the cleaning operations the pipeline stages apply
// to a table: null and invalid-value accounting, invalid-value repair, and
// statistical imputation with optional grouping.
package clean

import (
	"fmt"
	"sort"

	"github.com/amesworks/groundwork/internal/table"
)

// NullCount returns the number of missing cells in a column.
func NullCount(col *table.Column) int {
	return col.MissingCount()
}

// InvalidCount returns the number of known cells whose value is outside the
// allowed set. Missing cells are accounted separately by NullCount and are
// not counted here.
func InvalidCount(col *table.Column, allowed map[string]struct{}) int {
	n := 0
	for i := 0; i < col.Len(); i++ {
		v, ok := col.Value(i)
		if !ok {
			continue
		}
		if _, valid := allowed[v]; !valid {
			n++
		}
	}
	return n
}

// UniqueInvalid returns the distinct invalid values in a column, sorted.
func UniqueInvalid(col *table.Column, allowed map[string]struct{}) []string {
	seen := make(map[string]struct{})
	for i := 0; i < col.Len(); i++ {
		v, ok := col.Value(i)
		if !ok {
			continue
		}
		if _, valid := allowed[v]; !valid {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ReplaceResult reports what ReplaceInvalid did to a column.
type ReplaceResult struct {
	// Replaced counts invalid cells rewritten via the replacement map.
	Replaced int
	// Nulled counts invalid cells with no replacement, now missing.
	Nulled int
}

// ReplaceInvalid rewrites invalid cells through the replacement map. An
// invalid value with no mapping becomes missing, so a later imputation pass
// can treat it like any other gap.
func ReplaceInvalid(col *table.Column, allowed map[string]struct{}, replacements map[string]string) ReplaceResult {
	var res ReplaceResult
	for i := 0; i < col.Len(); i++ {
		v, ok := col.Value(i)
		if !ok {
			continue
		}
		if _, valid := allowed[v]; valid {
			continue
		}
		if repl, mapped := replacements[v]; mapped {
			col.Set(i, repl)
			res.Replaced++
		} else {
			col.SetMissing(i)
			res.Nulled++
		}
	}
	return res
}

// FillMode fills missing cells with the column mode. It fails when the column
// has no known values to take a mode from.
func FillMode(col *table.Column) (filled int, err error) {
	mode, ok := table.Mode(col.Strings())
	if !ok {
		return 0, fmt.Errorf("clean: column %s has no known values", col.Name)
	}
	for i := 0; i < col.Len(); i++ {
		if col.IsMissing(i) {
			col.Set(i, mode)
			filled++
		}
	}
	return filled, nil
}

// FillMedian fills missing cells with the column median. It fails when the
// column has no known values or a cell does not parse as a number.
func FillMedian(col *table.Column) (filled int, err error) {
	values, err := col.Floats()
	if err != nil {
		return 0, err
	}
	median, ok := table.Median(values)
	if !ok {
		return 0, fmt.Errorf("clean: column %s has no known values", col.Name)
	}
	rendered := table.FormatFloat(median)
	for i := 0; i < col.Len(); i++ {
		if col.IsMissing(i) {
			col.Set(i, rendered)
			filled++
		}
	}
	return filled, nil
}

// FillModeBy fills missing cells in the named column with the mode of the
// rows sharing the same key in the by column. Groups with no known values,
// and rows whose key is itself missing, fall back to the overall mode.
func FillModeBy(t *table.Table, name, by string) (filled int, err error) {
	col, err := t.Column(name)
	if err != nil {
		return 0, err
	}
	overall, ok := table.Mode(col.Strings())
	if !ok {
		return 0, fmt.Errorf("clean: column %s has no known values", name)
	}
	groups, keyless, err := t.GroupBy(by)
	if err != nil {
		return 0, err
	}
	for _, rows := range groups {
		mode, ok := table.Mode(knownAt(col, rows))
		if !ok {
			mode = overall
		}
		filled += fillRows(col, rows, mode)
	}
	filled += fillRows(col, keyless, overall)
	return filled, nil
}

// FillMedianBy fills missing cells in the named column with the median of the
// rows sharing the same key in the by column. Groups with no known values,
// and rows whose key is itself missing, fall back to the overall median.
func FillMedianBy(t *table.Table, name, by string) (filled int, err error) {
	col, err := t.Column(name)
	if err != nil {
		return 0, err
	}
	all, err := col.Floats()
	if err != nil {
		return 0, err
	}
	overall, ok := table.Median(all)
	if !ok {
		return 0, fmt.Errorf("clean: column %s has no known values", name)
	}
	groups, keyless, err := t.GroupBy(by)
	if err != nil {
		return 0, err
	}
	for _, rows := range groups {
		values, err := floatsAt(col, rows)
		if err != nil {
			return filled, err
		}
		median, ok := table.Median(values)
		if !ok {
			median = overall
		}
		filled += fillRows(col, rows, table.FormatFloat(median))
	}
	filled += fillRows(col, keyless, table.FormatFloat(overall))
	return filled, nil
}

// ModeBy returns the per-group mode of the named column, keyed by the values
// of the by column. Groups with no known values carry the overall mode.
func ModeBy(t *table.Table, name, by string) (map[string]string, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	overall, ok := table.Mode(col.Strings())
	if !ok {
		return nil, fmt.Errorf("clean: column %s has no known values", name)
	}
	groups, _, err := t.GroupBy(by)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(groups))
	for key, rows := range groups {
		mode, ok := table.Mode(knownAt(col, rows))
		if !ok {
			mode = overall
		}
		out[key] = mode
	}
	return out, nil
}

// MedianBy returns the per-group median of the named column, keyed by the
// values of the by column. Groups with no known values carry the overall
// median.
func MedianBy(t *table.Table, name, by string) (map[string]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	all, err := col.Floats()
	if err != nil {
		return nil, err
	}
	overall, ok := table.Median(all)
	if !ok {
		return nil, fmt.Errorf("clean: column %s has no known values", name)
	}
	groups, _, err := t.GroupBy(by)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(groups))
	for key, rows := range groups {
		values, err := floatsAt(col, rows)
		if err != nil {
			return nil, err
		}
		median, ok := table.Median(values)
		if !ok {
			median = overall
		}
		out[key] = median
	}
	return out, nil
}

func knownAt(col *table.Column, rows []int) []string {
	out := make([]string, 0, len(rows))
	for _, i := range rows {
		if v, ok := col.Value(i); ok {
			out = append(out, v)
		}
	}
	return out
}

func floatsAt(col *table.Column, rows []int) ([]float64, error) {
	out := make([]float64, 0, len(rows))
	for _, i := range rows {
		v, ok, err := col.FloatAt(i)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func fillRows(col *table.Column, rows []int, value string) int {
	filled := 0
	for _, i := range rows {
		if col.IsMissing(i) {
			col.Set(i, value)
			filled++
		}
	}
	return filled
}
