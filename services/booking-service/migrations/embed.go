package migrations

import "embed"

// FS holds the numbered golang-migrate files for the booking database.
//
//go:embed *.sql
var FS embed.FS
