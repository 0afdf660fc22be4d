package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250415093217_add_users_unit_system_column",
			Up: []string{
				// The type must exist before the column that uses it. The type
				// creation is unguarded, so a pre-existing type surfaces as a
				// duplicate object error.
				"CREATE TYPE unit_system AS ENUM ('metric', 'imperial')",
				"ALTER TABLE users ADD COLUMN unit_system unit_system NOT NULL DEFAULT 'metric'",
			},
			Down: []string{
				"ALTER TABLE users DROP COLUMN unit_system",
				"DROP TYPE IF EXISTS unit_system",
			},
		},
		Parent:         "20250320101156_create_planting_events_table",
		PostDeployment: false,
	}

	allMigrations = append(allMigrations, m)
}
