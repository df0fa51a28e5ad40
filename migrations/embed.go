// Package migrations holds the numbered SQL files applied by
// "calc-server migrate up".
package migrations

import "embed"

// FS contains every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
