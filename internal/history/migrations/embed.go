// Package migrations contains embedded SQL migrations for the history ledger.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
