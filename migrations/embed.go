package migrations

import "embed"

// FS holds the schema for the postgres image metadata store.
//
//go:embed *.sql
var FS embed.FS
