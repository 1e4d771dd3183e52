// Package migrations carries the Postgres schema applied by
// "icuward-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
