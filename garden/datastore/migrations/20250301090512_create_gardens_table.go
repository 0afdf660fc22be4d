package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250301090512_create_gardens_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS gardens (
					id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					user_id bigint NOT NULL,
					created_at timestamp WITH time zone NOT NULL DEFAULT now(),
					name text NOT NULL,
					CONSTRAINT pk_gardens PRIMARY KEY (id),
					CONSTRAINT fk_gardens_user_id_users FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
					CONSTRAINT check_gardens_name_length CHECK ((char_length(name) <= 255))
				)`,
				"CREATE INDEX IF NOT EXISTS index_gardens_on_user_id ON gardens USING btree (user_id)",
			},
			Down: []string{
				"DROP TABLE IF EXISTS gardens CASCADE",
			},
		},
		Parent:         "20250301085745_create_users_table",
		PostDeployment: false,
	}

	allMigrations = append(allMigrations, m)
}
