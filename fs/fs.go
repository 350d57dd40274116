// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations assets
var FS embed.FS

// MigrationsDir returns the migrations directory for the given database engine.
func MigrationsDir(engine string) string {
	if engine == "postgres" {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}
