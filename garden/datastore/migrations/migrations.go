package migrations

import (
	migrate "github.com/rubenv/sql-migrate"
)

var allMigrations []*Migration

// Migration is a database migration with an explicit parent pointer and
// scheduling metadata on top of the underlying library type.
type Migration struct {
	*migrate.Migration

	// Parent is the ID of the migration that this one builds on. It is empty
	// only for the first migration of the chain.
	Parent string

	// PostDeployment marks a migration that can be deferred until after a
	// deployment has completed, such as a long-running index build.
	PostDeployment bool
}

// All returns all registered migrations.
func All() []*Migration {
	return allMigrations
}
