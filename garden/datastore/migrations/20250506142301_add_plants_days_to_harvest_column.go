package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250506142301_add_plants_days_to_harvest_column",
			Up: []string{
				"ALTER TABLE plants ADD COLUMN IF NOT EXISTS days_to_harvest smallint",
			},
			Down: []string{
				"ALTER TABLE plants DROP COLUMN IF EXISTS days_to_harvest",
			},
		},
		Parent:         "20250415093217_add_users_unit_system_column",
		PostDeployment: false,
	}

	allMigrations = append(allMigrations, m)
}
