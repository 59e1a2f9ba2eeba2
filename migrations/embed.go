package migrations

import "embed"

// Files holds the schema migrations compiled into the binary so deployments
// never depend on SQL files being present on disk.
//
//go:embed *.sql
var Files embed.FS
