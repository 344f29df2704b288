// Package migrations embeds the schema used when profiles are stored in a
// self-hosted Postgres database.
package migrations

import "embed"

// FS holds the *.up.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
