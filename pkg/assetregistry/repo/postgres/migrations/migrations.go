// Package migrations embeds the goose migrations for the assets table.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
