package clean

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caseRules(t *testing.T) []Rule {
	t.Helper()
	hasAlley, err := NewPredicate("in", "", []string{"Grvl", "Pave"})
	require.NoError(t, err)
	wide, err := NewPredicate("ge", "65", nil)
	require.NoError(t, err)
	return []Rule{
		{Column: "Alley", Label: "paved", Other: "other", Test: hasAlley},
		{Column: "Lot Frontage", Label: "wide", Other: "narrow", Test: wide},
	}
}

func TestCategorize(t *testing.T) {
	tbl := load(t, groupCSV)
	categories, cases, err := Categorize(tbl, caseRules(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Alley", "Lot Frontage", "Count"}, categories.Names())
	assert.Equal(t, tbl.Rows(), categories.Rows())

	alley := column(t, categories, "Alley")
	v, _ := alley.Value(0)
	assert.Equal(t, "paved", v)
	v, _ = alley.Value(1)
	assert.Equal(t, NullLabel, v, "missing cells categorize as null")

	count := column(t, categories, CountColumn)
	for i := 0; i < count.Len(); i++ {
		v, _ := count.Value(i)
		assert.Equal(t, "1", v)
	}

	// groupCSV rows label as: (paved,wide) (null,wide) (paved,null)
	// (paved,narrow) (null,null) (null,null).
	require.Equal(t, 5, cases.Rows(), "distinct label combinations")
	caseAlley := column(t, cases, "Alley")
	caseCount := column(t, cases, CountColumn)
	first, _ := caseAlley.Value(0)
	assert.Equal(t, NullLabel, first, "cases sort by their labels")
	doubled, _ := caseCount.Value(0)
	assert.Equal(t, "2", doubled, "repeated combinations sum their counts")
}

func TestCategorizeValidation(t *testing.T) {
	tbl := load(t, groupCSV)

	_, _, err := Categorize(tbl, nil)
	assert.ErrorContains(t, err, "no rules")

	rules := caseRules(t)
	rules[0].Other = ""
	_, _, err = Categorize(tbl, rules)
	assert.ErrorContains(t, err, "both labels")

	rules = caseRules(t)
	rules[1].Label = NullLabel
	_, _, err = Categorize(tbl, rules)
	assert.ErrorContains(t, err, "reserves")

	rules = caseRules(t)
	rules[0].Column = "SalePrice"
	_, _, err = Categorize(tbl, rules)
	assert.ErrorContains(t, err, "column not found")
}

func TestCategorizeNumericRuleOnText(t *testing.T) {
	tbl := load(t, groupCSV)
	wide, err := NewPredicate("gt", "10", nil)
	require.NoError(t, err)

	_, _, err = Categorize(tbl, []Rule{{Column: "Neighborhood", Label: "big", Other: "small", Test: wide}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"North"`)
}

func TestNewPredicate(t *testing.T) {
	eq, err := NewPredicate("eq", "Grvl", nil)
	require.NoError(t, err)
	hit, err := eq("Grvl")
	require.NoError(t, err)
	assert.True(t, hit)
	hit, _ = eq("Pave")
	assert.False(t, hit)

	ne, err := NewPredicate("ne", "Grvl", nil)
	require.NoError(t, err)
	hit, _ = ne("Pave")
	assert.True(t, hit)

	le, err := NewPredicate("le", "10", nil)
	require.NoError(t, err)
	hit, err = le("10")
	require.NoError(t, err)
	assert.True(t, hit)

	_, err = NewPredicate("gt", "ten", nil)
	assert.ErrorContains(t, err, "as number")
	_, err = NewPredicate("in", "", nil)
	assert.ErrorContains(t, err, "needs values")
	_, err = NewPredicate("matches", "x", nil)
	assert.ErrorContains(t, err, "unknown operator")
}

func TestMaskForCase(t *testing.T) {
	tbl := load(t, groupCSV)
	categories, cases, err := Categorize(tbl, caseRules(t))
	require.NoError(t, err)

	// Case 0 is (null, null), covering source rows 4 and 5.
	mask, err := MaskForCase(categories, cases, 0)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, false, true, true}, mask)

	_, err = MaskForCase(categories, cases, cases.Rows())
	assert.ErrorContains(t, err, "out of range")
}
