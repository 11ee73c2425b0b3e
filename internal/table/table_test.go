package table

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleCSV = `Id,MS Zoning,Lot Frontage,Alley
1,RL,65,NA
2,RL,80,Grvl
3,RM,,Pave
4,NA,60,NA
`

func mustRead(t *testing.T, csv string) *Table {
	t.Helper()
	tbl, err := ReadCSV(strings.NewReader(csv), Options{})
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	return tbl
}

func TestReadCSV(t *testing.T) {
	tbl := mustRead(t, sampleCSV)

	if got := tbl.Rows(); got != 4 {
		t.Fatalf("expected 4 rows, got %d", got)
	}
	want := []string{"Id", "MS Zoning", "Lot Frontage", "Alley"}
	if got := tbl.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected columns %v, got %v", want, got)
	}

	alley, err := tbl.Column("Alley")
	if err != nil {
		t.Fatalf("column Alley: %v", err)
	}
	if !alley.IsMissing(0) || alley.IsMissing(1) {
		t.Fatalf("expected NA missing and Grvl present")
	}
	if got := alley.MissingCount(); got != 2 {
		t.Fatalf("expected 2 missing in Alley, got %d", got)
	}

	frontage, err := tbl.Column("Lot Frontage")
	if err != nil {
		t.Fatalf("column Lot Frontage: %v", err)
	}
	if !frontage.IsMissing(2) {
		t.Fatalf("expected empty cell to read as missing")
	}
	if v, ok := frontage.Value(0); !ok || v != "65" {
		t.Fatalf("expected 65, got %q ok=%v", v, ok)
	}
}

func TestColumnNotFound(t *testing.T) {
	tbl := mustRead(t, sampleCSV)
	if _, err := tbl.Column("SalePrice"); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
	if _, _, err := tbl.GroupBy("SalePrice"); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound from GroupBy, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	tbl := mustRead(t, sampleCSV)

	path := filepath.Join(t.TempDir(), "out", "sample.csv")
	if err := tbl.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(raw), "3,RM,NA,Pave") {
		t.Fatalf("expected missing cells to render as NA, got:\n%s", raw)
	}

	again, err := ReadFile(path, Options{})
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if again.Rows() != tbl.Rows() {
		t.Fatalf("expected %d rows after round trip, got %d", tbl.Rows(), again.Rows())
	}
	zone, _ := again.Column("MS Zoning")
	if !zone.IsMissing(3) {
		t.Fatalf("expected missing zone to survive round trip")
	}
}

func TestAppendRowWidth(t *testing.T) {
	tbl := mustRead(t, sampleCSV)
	if err := tbl.AppendRow([]string{"5", "RL"}); err == nil {
		t.Fatalf("expected error for short row")
	}
}

func TestAddColumn(t *testing.T) {
	tbl := mustRead(t, sampleCSV)

	if err := tbl.AddColumn("Alley", []string{"a", "b", "c", "d"}); err == nil {
		t.Fatalf("expected duplicate column error")
	}
	if err := tbl.AddColumn("Category", []string{"x"}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if err := tbl.AddColumn("Category", []string{"1", "1", "2", "NA"}); err != nil {
		t.Fatalf("add column: %v", err)
	}
	col, err := tbl.Column("Category")
	if err != nil {
		t.Fatalf("column Category: %v", err)
	}
	if !col.IsMissing(3) {
		t.Fatalf("expected NA cell in added column to be missing")
	}

	empty, err := New(nil, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := empty.AddColumn("Case", []string{"a", "b"}); err != nil {
		t.Fatalf("add first column: %v", err)
	}
	if empty.Rows() != 2 {
		t.Fatalf("expected first column to set row count, got %d", empty.Rows())
	}
}

func TestGroupBy(t *testing.T) {
	tbl := mustRead(t, sampleCSV)
	groups, missing, err := tbl.GroupBy("MS Zoning")
	if err != nil {
		t.Fatalf("group by: %v", err)
	}
	if !reflect.DeepEqual(groups["RL"], []int{0, 1}) {
		t.Fatalf("expected RL rows [0 1], got %v", groups["RL"])
	}
	if !reflect.DeepEqual(groups["RM"], []int{2}) {
		t.Fatalf("expected RM rows [2], got %v", groups["RM"])
	}
	if !reflect.DeepEqual(missing, []int{3}) {
		t.Fatalf("expected missing rows [3], got %v", missing)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := mustRead(t, sampleCSV)
	clone := tbl.Clone()

	col, _ := clone.Column("MS Zoning")
	col.Set(0, "C (all)")
	col.SetMissing(1)

	orig, _ := tbl.Column("MS Zoning")
	if v, _ := orig.Value(0); v != "RL" {
		t.Fatalf("expected original untouched, got %q", v)
	}
	if orig.IsMissing(1) {
		t.Fatalf("expected original row 1 present")
	}
	if v, _ := col.Value(0); v != "C (all)" {
		t.Fatalf("expected clone updated, got %q", v)
	}
}

func TestSetNormalizesMarkers(t *testing.T) {
	tbl := mustRead(t, sampleCSV)
	col, _ := tbl.Column("Alley")
	col.Set(1, "NA")
	if !col.IsMissing(1) {
		t.Fatalf("expected Set with NA marker to mark cell missing")
	}
}

func TestFloats(t *testing.T) {
	tbl := mustRead(t, sampleCSV)

	frontage, _ := tbl.Column("Lot Frontage")
	got, err := frontage.Floats()
	if err != nil {
		t.Fatalf("floats: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{65, 80, 60}) {
		t.Fatalf("expected [65 80 60], got %v", got)
	}

	zone, _ := tbl.Column("MS Zoning")
	if _, err := zone.Floats(); err == nil || !strings.Contains(err.Error(), `"RL"`) {
		t.Fatalf("expected parse error naming the value, got %v", err)
	}

	v, ok, err := frontage.FloatAt(2)
	if err != nil || ok {
		t.Fatalf("expected missing float, got %v ok=%v err=%v", v, ok, err)
	}
}

func TestMode(t *testing.T) {
	if _, ok := Mode(nil); ok {
		t.Fatalf("expected no mode for empty input")
	}
	if v, _ := Mode([]string{"b", "a", "b", "a", "c"}); v != "a" {
		t.Fatalf("expected tie to break toward smallest value, got %q", v)
	}
	if v, _ := Mode([]string{"x", "y", "y"}); v != "y" {
		t.Fatalf("expected y, got %q", v)
	}
}

func TestMedian(t *testing.T) {
	if _, ok := Median(nil); ok {
		t.Fatalf("expected no median for empty input")
	}
	if v, _ := Median([]float64{3, 1, 2}); v != 2 {
		t.Fatalf("expected 2, got %v", v)
	}
	if v, _ := Median([]float64{4, 1, 3, 2}); v != 2.5 {
		t.Fatalf("expected 2.5 for even count, got %v", v)
	}
}

func TestQuantile(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	if v, _ := Quantile(values, 0.25); math.Abs(v-1.75) > 1e-9 {
		t.Fatalf("expected 1.75, got %v", v)
	}
	if v, _ := Quantile(values, 0); v != 1 {
		t.Fatalf("expected min at q=0, got %v", v)
	}
	if v, _ := Quantile(values, 1); v != 4 {
		t.Fatalf("expected max at q=1, got %v", v)
	}
	if _, ok := Quantile(values, 1.5); ok {
		t.Fatalf("expected out-of-range q to be rejected")
	}
	if v, _ := Quantile([]float64{7}, 0.9); v != 7 {
		t.Fatalf("expected single value, got %v", v)
	}
}

func TestFormatFloat(t *testing.T) {
	if got := FormatFloat(65); got != "65" {
		t.Fatalf("expected 65, got %q", got)
	}
	if got := FormatFloat(2.5); got != "2.5" {
		t.Fatalf("expected 2.5, got %q", got)
	}
}
