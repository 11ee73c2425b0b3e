package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func parseFloat(cell string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q as number", cell)
	}
	return v, nil
}

// Mode returns the most frequent value, breaking frequency ties toward the
// smallest value in sort order. ok is false for an empty input.
func Mode(values []string) (value string, ok bool) {
	if len(values) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best := ""
	bestCount := -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best = v
			bestCount = n
		}
	}
	return best, true
}

// Median returns the middle value, averaging the two middle values for an
// even count. ok is false for an empty input.
func Median(values []float64) (value float64, ok bool) {
	return Quantile(values, 0.5)
}

// Quantile returns the q-th quantile with linear interpolation between the
// two nearest ranks. q must be in [0, 1]; ok is false for an empty input.
func Quantile(values []float64, q float64) (value float64, ok bool) {
	if len(values) == 0 || q < 0 || q > 1 {
		return 0, false
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0], true
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1], true
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo]), true
}

// FormatFloat renders a float the way the source data does, dropping the
// fractional part when the value is whole.
func FormatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
