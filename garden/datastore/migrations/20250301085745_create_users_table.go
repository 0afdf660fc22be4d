package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20250301085745_create_users_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS users (
					id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					created_at timestamp WITH time zone NOT NULL DEFAULT now(),
					email text NOT NULL,
					name text,
					CONSTRAINT pk_users PRIMARY KEY (id),
					CONSTRAINT unique_users_email UNIQUE (email),
					CONSTRAINT check_users_email_length CHECK ((char_length(email) <= 255)),
					CONSTRAINT check_users_name_length CHECK ((char_length(name) <= 255))
				)`,
			},
			Down: []string{
				"DROP TABLE IF EXISTS users CASCADE",
			},
		},
		PostDeployment: false,
	}

	allMigrations = append(allMigrations, m)
}
