// Package audit hosts the stage that checks the training table against the
// parsed dictionary. It counts missing cells, flags values outside each
// documented value set, fences numeric outliers, and reports column drift in
// both directions. Findings land in audit.json for machines and audit.md for
// people; neither mutates the table.
package audit
