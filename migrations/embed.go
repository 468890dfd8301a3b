// Package migrations holds the schema shipped inside the server binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
