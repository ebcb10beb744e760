// Package migrations embeds the SQLite schema for the definition store.
//
// Importing this package for side effects registers the files with the
// database package:
//
//	import _ "github.com/nerrad567/tagwatch-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/tagwatch-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
