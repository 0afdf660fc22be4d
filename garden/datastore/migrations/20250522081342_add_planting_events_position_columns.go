package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250522081342_add_planting_events_position_columns",
			Up: []string{
				// Unguarded. A missing table or an already existing column
				// surfaces as the database engine's own error.
				"ALTER TABLE planting_events ADD COLUMN x double precision",
				"ALTER TABLE planting_events ADD COLUMN y double precision",
			},
			Down: []string{
				"ALTER TABLE planting_events DROP COLUMN y",
				"ALTER TABLE planting_events DROP COLUMN x",
			},
		},
		Parent:         "20250506142301_add_plants_days_to_harvest_column",
		PostDeployment: false,
	}

	allMigrations = append(allMigrations, m)
}
