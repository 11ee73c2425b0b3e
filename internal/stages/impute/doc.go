// Package impute hosts the stage that fills missing cells in the repaired
// table. Each configured rule fills one variable with its mode or median,
// optionally grouped by another column with a fallback to the overall
// statistic. The result lands in imputed.csv.
package impute
