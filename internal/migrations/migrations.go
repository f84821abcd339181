package migrations

import "embed"

// Files holds the schema migrations for the sync store, embedded into the
// binary. Names follow NNN_description.sql; the runner applies them in
// lexical order, so the numeric prefix is the version.
//
//go:embed *.sql
var Files embed.FS
