package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250320101156_create_planting_events_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS planting_events (
					id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					plant_id bigint NOT NULL,
					planted_at timestamp WITH time zone NOT NULL DEFAULT now(),
					notes text,
					CONSTRAINT pk_planting_events PRIMARY KEY (id),
					CONSTRAINT fk_planting_events_plant_id_plants FOREIGN KEY (plant_id) REFERENCES plants (id) ON DELETE CASCADE,
					CONSTRAINT check_planting_events_notes_length CHECK ((char_length(notes) <= 1024))
				)`,
				"CREATE INDEX IF NOT EXISTS index_planting_events_on_plant_id ON planting_events USING btree (plant_id)",
			},
			Down: []string{
				"DROP TABLE IF EXISTS planting_events CASCADE",
			},
		},
		Parent:         "20250312113304_create_plants_table",
		PostDeployment: false,
	}

	allMigrations = append(allMigrations, m)
}
