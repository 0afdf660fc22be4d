package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250601101530_add_planting_events_planted_at_index",
			Up: []string{
				"CREATE INDEX IF NOT EXISTS index_planting_events_on_planted_at ON planting_events USING btree (planted_at)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS index_planting_events_on_planted_at CASCADE",
			},
		},
		Parent:         "20250522081342_add_planting_events_position_columns",
		PostDeployment: true,
	}

	allMigrations = append(allMigrations, m)
}
