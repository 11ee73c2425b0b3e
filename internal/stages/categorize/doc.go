// Package categorize hosts the optional stage that labels rows of the
// imputed table. Each configured rule tests one column with a predicate and
// assigns its label or else-label; missing cells get the reserved "null"
// label. The per-row labels land in categories.csv and the tallied distinct
// combinations in cases.csv. With no rules configured the stage is a no-op
// and produces nothing.
package categorize
