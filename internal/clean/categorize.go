package clean

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/amesworks/groundwork/internal/table"
)

// NullLabel is the category assigned to missing cells.
const NullLabel = "null"

// CountColumn names the tally column of the categorized tables.
const CountColumn = "Count"

// Predicate tests a known cell value.
type Predicate func(value string) (bool, error)

// Rule labels the values of one column: cells matching the predicate get
// Label, known cells that do not get Other, and missing cells get NullLabel.
type Rule struct {
	Column string
	Label  string
	Other  string
	Test   Predicate
}

func (r Rule) validate() error {
	if r.Column == "" {
		return fmt.Errorf("clean: rule without a column")
	}
	if r.Label == "" || r.Other == "" {
		return fmt.Errorf("clean: rule for %s needs both labels", r.Column)
	}
	if r.Label == NullLabel || r.Other == NullLabel {
		return fmt.Errorf("clean: rule for %s reserves %q for missing cells", r.Column, NullLabel)
	}
	if r.Test == nil {
		return fmt.Errorf("clean: rule for %s without a predicate", r.Column)
	}
	return nil
}

// NewPredicate builds a predicate from an operator name. The operators eq,
// ne and in compare as strings; gt, ge, lt and le compare numerically.
func NewPredicate(op, operand string, operands []string) (Predicate, error) {
	switch op {
	case "eq", "ne":
		if operand == "" {
			return nil, fmt.Errorf("clean: operator %s needs a value", op)
		}
		want := op == "eq"
		value := operand
		return func(v string) (bool, error) {
			return (v == value) == want, nil
		}, nil
	case "in":
		if len(operands) == 0 {
			return nil, fmt.Errorf("clean: operator in needs values")
		}
		set := make(map[string]struct{}, len(operands))
		for _, v := range operands {
			set[v] = struct{}{}
		}
		return func(v string) (bool, error) {
			_, ok := set[v]
			return ok, nil
		}, nil
	case "gt", "ge", "lt", "le":
		if operand == "" {
			return nil, fmt.Errorf("clean: operator %s needs a value", op)
		}
		threshold, err := strconv.ParseFloat(strings.TrimSpace(operand), 64)
		if err != nil {
			return nil, fmt.Errorf("clean: operator %s: parse %q as number", op, operand)
		}
		return func(v string) (bool, error) {
			x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return false, fmt.Errorf("clean: compare %q as number", v)
			}
			switch op {
			case "gt":
				return x > threshold, nil
			case "ge":
				return x >= threshold, nil
			case "lt":
				return x < threshold, nil
			default:
				return x <= threshold, nil
			}
		}, nil
	default:
		return nil, fmt.Errorf("clean: unknown operator %q", op)
	}
}

// Categorize labels each row of the source table per the rules and tallies
// the label combinations. The categories table has one row per source row
// with one column per rule plus a unit Count. The cases table has one row per
// distinct label combination, sorted, with the summed Count.
func Categorize(t *table.Table, rules []Rule) (categories, cases *table.Table, err error) {
	if len(rules) == 0 {
		return nil, nil, fmt.Errorf("clean: no rules to categorize by")
	}
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		if err := rule.validate(); err != nil {
			return nil, nil, err
		}
		names = append(names, rule.Column)
	}

	// Derived tables treat only the empty string as missing so labels are
	// never confused with source NA markers.
	opts := table.Options{NAMarkers: []string{""}}
	categories, err = table.New(append(append([]string{}, names...), CountColumn), opts)
	if err != nil {
		return nil, nil, err
	}

	labeled := make([][]string, len(rules))
	for ri, rule := range rules {
		col, err := t.Column(rule.Column)
		if err != nil {
			return nil, nil, err
		}
		labels := make([]string, col.Len())
		for i := 0; i < col.Len(); i++ {
			v, known := col.Value(i)
			switch {
			case !known:
				labels[i] = NullLabel
			default:
				hit, err := rule.Test(v)
				if err != nil {
					return nil, nil, fmt.Errorf("clean: column %s row %d: %w", rule.Column, i+2, err)
				}
				if hit {
					labels[i] = rule.Label
				} else {
					labels[i] = rule.Other
				}
			}
		}
		labeled[ri] = labels
	}

	record := make([]string, len(rules)+1)
	for row := 0; row < t.Rows(); row++ {
		for ri := range rules {
			record[ri] = labeled[ri][row]
		}
		record[len(rules)] = "1"
		if err := categories.AppendRow(record); err != nil {
			return nil, nil, err
		}
	}

	cases, err = tallyCases(categories, names, opts)
	if err != nil {
		return nil, nil, err
	}
	return categories, cases, nil
}

func tallyCases(categories *table.Table, names []string, opts table.Options) (*table.Table, error) {
	type entry struct {
		labels []string
		count  int
	}
	index := make(map[string]*entry)
	order := make([]*entry, 0)

	cols := make([]*table.Column, len(names))
	for i, name := range names {
		col, err := categories.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	for row := 0; row < categories.Rows(); row++ {
		labels := make([]string, len(cols))
		for i, col := range cols {
			labels[i], _ = col.Value(row)
		}
		key := strings.Join(labels, "\x1f")
		e, seen := index[key]
		if !seen {
			e = &entry{labels: labels}
			index[key] = e
			order = append(order, e)
		}
		e.count++
	}
	sort.Slice(order, func(a, b int) bool {
		la, lb := order[a].labels, order[b].labels
		for i := range la {
			if la[i] != lb[i] {
				return la[i] < lb[i]
			}
		}
		return false
	})

	cases, err := table.New(append(append([]string{}, names...), CountColumn), opts)
	if err != nil {
		return nil, err
	}
	for _, e := range order {
		if err := cases.AppendRow(append(append([]string{}, e.labels...), strconv.Itoa(e.count))); err != nil {
			return nil, err
		}
	}
	return cases, nil
}

// MaskForCase reports, per categories row, whether it belongs to the given
// cases row. The mask indexes the source table the categories were built
// from.
func MaskForCase(categories, cases *table.Table, caseRow int) ([]bool, error) {
	if caseRow < 0 || caseRow >= cases.Rows() {
		return nil, fmt.Errorf("clean: case %d out of range, have %d cases", caseRow, cases.Rows())
	}
	mask := make([]bool, categories.Rows())
	for i := range mask {
		mask[i] = true
	}
	for _, name := range cases.Names() {
		if name == CountColumn {
			continue
		}
		caseCol, err := cases.Column(name)
		if err != nil {
			return nil, err
		}
		want, _ := caseCol.Value(caseRow)
		catCol, err := categories.Column(name)
		if err != nil {
			return nil, fmt.Errorf("clean: categories table: %w", err)
		}
		for i := 0; i < catCol.Len(); i++ {
			got, _ := catCol.Value(i)
			if got != want {
				mask[i] = false
			}
		}
	}
	return mask, nil
}
