package clean

import (
	"fmt"

	"github.com/amesworks/groundwork/internal/table"
)

// DefaultFenceFactor is the usual Tukey fence multiplier.
const DefaultFenceFactor = 1.5

// Bounds describes the inter-quartile fences of a numeric column.
type Bounds struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	IQR   float64 `json:"iqr"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// OutlierBounds computes Tukey fences at k times the inter-quartile range.
// ok is false for an empty input.
func OutlierBounds(values []float64, k float64) (b Bounds, ok bool) {
	q1, ok := table.Quantile(values, 0.25)
	if !ok {
		return Bounds{}, false
	}
	q3, _ := table.Quantile(values, 0.75)
	iqr := q3 - q1
	return Bounds{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1 - k*iqr,
		Upper: q3 + k*iqr,
	}, true
}

// Outliers returns the row indices of known cells outside the column's Tukey
// fences, together with the fences used.
func Outliers(col *table.Column, k float64) (rows []int, b Bounds, err error) {
	values, err := col.Floats()
	if err != nil {
		return nil, Bounds{}, err
	}
	b, ok := OutlierBounds(values, k)
	if !ok {
		return nil, Bounds{}, fmt.Errorf("clean: column %s has no known values", col.Name)
	}
	for i := 0; i < col.Len(); i++ {
		v, known, err := col.FloatAt(i)
		if err != nil {
			return nil, Bounds{}, err
		}
		if known && (v < b.Lower || v > b.Upper) {
			rows = append(rows, i)
		}
	}
	return rows, b, nil
}
