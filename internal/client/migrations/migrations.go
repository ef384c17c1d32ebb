// Package migrations embeds the goose migrations of the local rating journal.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
