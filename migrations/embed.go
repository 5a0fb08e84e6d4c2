// Package migrations embeds the SQL schema applied to sqlite credential stores.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
