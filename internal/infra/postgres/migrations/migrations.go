// Package migrations holds the bun migrations for the quiz library and results archive.
// Each migration registers from a file named <version>_<name>.go, which bun uses as its name.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
