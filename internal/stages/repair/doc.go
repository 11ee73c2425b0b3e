// Package repair hosts the gated stage that rewrites invalid cells in the
// training table. Values outside a documented value set (or unparsable
// numbers in quantitative columns) are mapped through the configured
// replacement rules; anything left unmapped becomes missing so the impute
// stage can fill it. The source table is never touched, the result lands in
// repaired.csv.
package repair
