package clean

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amesworks/groundwork/internal/table"
)

const auditCSV = `Id,Alley,Lot Frontage
1,Grvl,65
2,NA,80
3,Pave,NA
4,Gravel,60
5,Paved,NA
`

const groupCSV = `Id,Alley,Lot Frontage,Neighborhood
1,Grvl,65,North
2,NA,80,North
3,Pave,NA,South
4,Pave,60,South
5,NA,NA,South
6,NA,NA,NA
`

func load(t *testing.T, csv string) *table.Table {
	t.Helper()
	tbl, err := table.ReadCSV(strings.NewReader(csv), table.Options{})
	require.NoError(t, err)
	return tbl
}

func column(t *testing.T, tbl *table.Table, name string) *table.Column {
	t.Helper()
	col, err := tbl.Column(name)
	require.NoError(t, err)
	return col
}

func allowedAlley() map[string]struct{} {
	return map[string]struct{}{"Grvl": {}, "Pave": {}}
}

func TestCounts(t *testing.T) {
	tbl := load(t, auditCSV)
	alley := column(t, tbl, "Alley")

	assert.Equal(t, 1, NullCount(alley))
	assert.Equal(t, 2, InvalidCount(alley, allowedAlley()), "missing cells are not invalid")
	assert.Equal(t, []string{"Gravel", "Paved"}, UniqueInvalid(alley, allowedAlley()))
}

func TestReplaceInvalid(t *testing.T) {
	tbl := load(t, auditCSV)
	alley := column(t, tbl, "Alley")

	res := ReplaceInvalid(alley, allowedAlley(), map[string]string{"Gravel": "Grvl"})
	assert.Equal(t, ReplaceResult{Replaced: 1, Nulled: 1}, res)

	v, ok := alley.Value(3)
	require.True(t, ok)
	assert.Equal(t, "Grvl", v)
	assert.True(t, alley.IsMissing(4), "unmapped invalid value becomes missing")

	v, ok = alley.Value(0)
	require.True(t, ok)
	assert.Equal(t, "Grvl", v, "valid values stay untouched")
	assert.Equal(t, 0, InvalidCount(alley, allowedAlley()))
}

func TestFillMode(t *testing.T) {
	tbl := load(t, groupCSV)
	alley := column(t, tbl, "Alley")

	filled, err := FillMode(alley)
	require.NoError(t, err)
	assert.Equal(t, 3, filled)
	for i := 0; i < alley.Len(); i++ {
		assert.False(t, alley.IsMissing(i))
	}
	v, _ := alley.Value(1)
	assert.Equal(t, "Pave", v, "overall mode")
}

func TestFillModeEmptyColumn(t *testing.T) {
	tbl, err := table.New(nil, table.Options{})
	require.NoError(t, err)
	require.NoError(t, tbl.AddColumn("Pool QC", []string{"NA", "NA"}))

	_, err = FillMode(column(t, tbl, "Pool QC"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no known values")
}

func TestFillMedian(t *testing.T) {
	tbl := load(t, groupCSV)
	frontage := column(t, tbl, "Lot Frontage")

	filled, err := FillMedian(frontage)
	require.NoError(t, err)
	assert.Equal(t, 3, filled)
	v, _ := frontage.Value(2)
	assert.Equal(t, "65", v, "whole medians render without a fraction")
}

func TestFillModeBy(t *testing.T) {
	tbl := load(t, groupCSV)

	filled, err := FillModeBy(tbl, "Alley", "Neighborhood")
	require.NoError(t, err)
	assert.Equal(t, 3, filled)

	alley := column(t, tbl, "Alley")
	north, _ := alley.Value(1)
	assert.Equal(t, "Grvl", north, "group mode wins over overall mode")
	south, _ := alley.Value(4)
	assert.Equal(t, "Pave", south)
	keyless, _ := alley.Value(5)
	assert.Equal(t, "Pave", keyless, "rows without a group key get the overall mode")
}

func TestFillMedianBy(t *testing.T) {
	tbl := load(t, groupCSV)

	filled, err := FillMedianBy(tbl, "Lot Frontage", "Neighborhood")
	require.NoError(t, err)
	assert.Equal(t, 3, filled)

	frontage := column(t, tbl, "Lot Frontage")
	south, _ := frontage.Value(2)
	assert.Equal(t, "60", south, "group median")
	keyless, _ := frontage.Value(5)
	assert.Equal(t, "65", keyless, "rows without a group key get the overall median")
}

func TestModeBy(t *testing.T) {
	tbl := load(t, groupCSV)

	modes, err := ModeBy(tbl, "Alley", "Neighborhood")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"North": "Grvl", "South": "Pave"}, modes)
}

func TestMedianBy(t *testing.T) {
	tbl := load(t, groupCSV)

	medians, err := MedianBy(tbl, "Lot Frontage", "Neighborhood")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"North": 72.5, "South": 60}, medians)
}

func TestGroupFillUnknownColumn(t *testing.T) {
	tbl := load(t, groupCSV)
	_, err := FillModeBy(tbl, "SalePrice", "Neighborhood")
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
	_, err = FillMedianBy(tbl, "Lot Frontage", "SalePrice")
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestOutlierBounds(t *testing.T) {
	b, ok := OutlierBounds([]float64{1, 2, 3, 4}, DefaultFenceFactor)
	require.True(t, ok)
	assert.InDelta(t, 1.75, b.Q1, 1e-9)
	assert.InDelta(t, 3.25, b.Q3, 1e-9)
	assert.InDelta(t, 1.5, b.IQR, 1e-9)
	assert.InDelta(t, -0.5, b.Lower, 1e-9)
	assert.InDelta(t, 5.5, b.Upper, 1e-9)

	_, ok = OutlierBounds(nil, DefaultFenceFactor)
	assert.False(t, ok)
}

func TestOutliers(t *testing.T) {
	tbl, err := table.New(nil, table.Options{})
	require.NoError(t, err)
	require.NoError(t, tbl.AddColumn("Lot Area", []string{
		"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "100",
	}))

	rows, b, err := Outliers(column(t, tbl, "Lot Area"), DefaultFenceFactor)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, rows)
	assert.InDelta(t, 16, b.Upper, 1e-9)
}
