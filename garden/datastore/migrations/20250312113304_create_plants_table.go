package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250312113304_create_plants_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS plants (
					id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					garden_id bigint NOT NULL,
					created_at timestamp WITH time zone NOT NULL DEFAULT now(),
					name text NOT NULL,
					species text,
					CONSTRAINT pk_plants PRIMARY KEY (id),
					CONSTRAINT fk_plants_garden_id_gardens FOREIGN KEY (garden_id) REFERENCES gardens (id) ON DELETE CASCADE,
					CONSTRAINT check_plants_name_length CHECK ((char_length(name) <= 255)),
					CONSTRAINT check_plants_species_length CHECK ((char_length(species) <= 255))
				)`,
				"CREATE INDEX IF NOT EXISTS index_plants_on_garden_id ON plants USING btree (garden_id)",
			},
			Down: []string{
				"DROP TABLE IF EXISTS plants CASCADE",
			},
		},
		Parent:         "20250301090512_create_gardens_table",
		PostDeployment: false,
	}

	allMigrations = append(allMigrations, m)
}
