// Package migrations embeds the SQL schema migrations for the goose runner.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
