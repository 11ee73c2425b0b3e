// Package report builds audit findings by checking a training table against
// the parsed dictionary: per-variable null counts, undocumented values,
// Tukey-fence outliers, and column drift between the two sources.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/amesworks/groundwork/internal/clean"
	"github.com/amesworks/groundwork/internal/dict"
	"github.com/amesworks/groundwork/internal/table"
)

// Variable holds the audit findings for one documented variable.
type Variable struct {
	Name          string        `json:"name"`
	Kind          dict.Kind     `json:"kind"`
	Nulls         int           `json:"nulls"`
	Invalid       int           `json:"invalid,omitempty"`
	InvalidValues []string      `json:"invalid_values,omitempty"`
	Outliers      int           `json:"outliers,omitempty"`
	Bounds        *clean.Bounds `json:"bounds,omitempty"`
}

// Audit is the machine-readable result of auditing a table against its
// dictionary. Variables keeps the dictionary's order.
type Audit struct {
	Rows         int        `json:"rows"`
	Columns      int        `json:"columns"`
	FenceFactor  float64    `json:"fence_factor"`
	Variables    []Variable `json:"variables"`
	Undocumented []string   `json:"undocumented,omitempty"`
	Missing      []string   `json:"missing,omitempty"`
}

// Build audits every documented variable against the table. Qualitative
// variables with listed values are checked for undocumented codes;
// quantitative variables are checked for non-numeric cells and fence
// outliers. k <= 0 falls back to the default fence factor.
func Build(d *dict.Dictionary, tbl *table.Table, k float64) (Audit, error) {
	if d == nil {
		return Audit{}, fmt.Errorf("report: dictionary is required")
	}
	if tbl == nil {
		return Audit{}, fmt.Errorf("report: table is required")
	}
	if k <= 0 {
		k = clean.DefaultFenceFactor
	}
	audit := Audit{
		Rows:        tbl.Rows(),
		Columns:     len(tbl.Names()),
		FenceFactor: k,
	}
	for _, def := range d.Definitions() {
		if !tbl.HasColumn(def.Name) {
			audit.Missing = append(audit.Missing, def.Name)
			continue
		}
		col, err := tbl.Column(def.Name)
		if err != nil {
			return Audit{}, fmt.Errorf("report: column %s: %w", def.Name, err)
		}
		variable := Variable{
			Name:  def.Name,
			Kind:  def.Kind,
			Nulls: clean.NullCount(col),
		}
		if def.Kind.Quantitative() {
			auditQuantitative(col, k, &variable)
		} else if allowed, ok := def.Allowed(); ok {
			variable.Invalid = clean.InvalidCount(col, allowed)
			variable.InvalidValues = clean.UniqueInvalid(col, allowed)
		}
		audit.Variables = append(audit.Variables, variable)
	}
	for _, name := range tbl.Names() {
		if _, ok := d.Lookup(name); !ok {
			audit.Undocumented = append(audit.Undocumented, name)
		}
	}
	return audit, nil
}

// auditQuantitative counts non-numeric cells as invalid and measures fence
// outliers over the cells that do parse.
func auditQuantitative(col *table.Column, k float64, variable *Variable) {
	var values []float64
	seen := make(map[string]struct{})
	for i := 0; i < col.Len(); i++ {
		cell, known := col.Value(i)
		if !known {
			continue
		}
		v, _, err := col.FloatAt(i)
		if err != nil {
			variable.Invalid++
			if _, dup := seen[cell]; !dup {
				seen[cell] = struct{}{}
				variable.InvalidValues = append(variable.InvalidValues, cell)
			}
			continue
		}
		values = append(values, v)
	}
	bounds, ok := clean.OutlierBounds(values, k)
	if !ok {
		return
	}
	for _, v := range values {
		if v < bounds.Lower || v > bounds.Upper {
			variable.Outliers++
		}
	}
	variable.Bounds = &bounds
}

// Totals sums the per-variable findings.
func (a Audit) Totals() (nulls, invalid, outliers int) {
	for _, v := range a.Variables {
		nulls += v.Nulls
		invalid += v.Invalid
		outliers += v.Outliers
	}
	return nulls, invalid, outliers
}

// Clean reports whether the audit found nothing to repair or impute.
func (a Audit) Clean() bool {
	nulls, invalid, _ := a.Totals()
	return nulls == 0 && invalid == 0 && len(a.Undocumented) == 0 && len(a.Missing) == 0
}

// EncodeJSON renders the audit as indented JSON.
func EncodeJSON(a Audit) ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: encode json: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeJSON parses an audit previously written by EncodeJSON.
func DecodeJSON(data []byte) (Audit, error) {
	var a Audit
	if err := json.Unmarshal(data, &a); err != nil {
		return Audit{}, fmt.Errorf("report: decode json: %w", err)
	}
	return a, nil
}
