package migrations

import "embed"

// FS contains embedded SQLite migrations for practice history.
//
//go:embed *.sql
var FS embed.FS
