//go:build integration

package migrationfixtures

import (
	"strconv"

	"github.com/realsystem/gardening-service-sub002/garden/datastore/migrations"
	migrate "github.com/rubenv/sql-migrate"
)

// allMigrations is a self-contained chain over a scratch table, so migrator
// tests never touch the real schema.
var allMigrations = []*migrations.Migration{
	{
		Migration: &migrate.Migration{
			Id: "20240101000001_create_test_beds_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS test_beds (
					id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					name text NOT NULL,
					CONSTRAINT pk_test_beds PRIMARY KEY (id)
				)`,
			},
			Down: []string{
				"DROP TABLE IF EXISTS test_beds CASCADE",
			},
		},
	},
	{
		Migration: &migrate.Migration{
			Id: "20240101000002_add_test_beds_soil_column",
			Up: []string{
				"ALTER TABLE test_beds ADD COLUMN IF NOT EXISTS soil text",
			},
			Down: []string{
				"ALTER TABLE test_beds DROP COLUMN IF EXISTS soil",
			},
		},
		Parent: "20240101000001_create_test_beds_table",
	},
	{
		Migration: &migrate.Migration{
			Id: "20240101000003_create_test_beds_name_index",
			Up: []string{
				"CREATE INDEX IF NOT EXISTS index_test_beds_on_name ON test_beds USING btree (name)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS index_test_beds_on_name CASCADE",
			},
		},
		Parent: "20240101000002_add_test_beds_soil_column",
	},
	{
		Migration: &migrate.Migration{
			Id: "20240101000004_add_test_beds_area_column",
			Up: []string{
				"ALTER TABLE test_beds ADD COLUMN IF NOT EXISTS area double precision",
			},
			Down: []string{
				"ALTER TABLE test_beds DROP COLUMN IF EXISTS area",
			},
		},
		Parent: "20240101000003_create_test_beds_name_index",
	},
	{
		Migration: &migrate.Migration{
			Id: "20240101000005_create_test_beds_area_index",
			Up: []string{
				"CREATE INDEX IF NOT EXISTS index_test_beds_on_area ON test_beds USING btree (area)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS index_test_beds_on_area CASCADE",
			},
		},
		Parent:         "20240101000004_add_test_beds_area_column",
		PostDeployment: true,
	},
}

// All returns the fixture migration chain.
func All() []*migrations.Migration {
	return allMigrations
}

// MidChainPostDeployment returns the fixture chain with the name index
// migration flagged as post-deployment, which strands it between regular
// migrations.
func MidChainPostDeployment() []*migrations.Migration {
	out := make([]*migrations.Migration, 0, len(allMigrations))
	for _, m := range allMigrations {
		c := *m
		c.PostDeployment = m.Id == "20240101000003_create_test_beds_name_index"
		out = append(out, &c)
	}
	return out
}

// Slow returns a single-migration chain whose up migration holds its
// transaction open for the given number of seconds, used to exercise lock
// contention.
func Slow(seconds int) []*migrations.Migration {
	return []*migrations.Migration{
		{
			Migration: &migrate.Migration{
				Id: "20240101000006_slow_up_migration",
				Up: []string{
					// Inlined because migration statements take no parameters.
					"SELECT pg_sleep(" + strconv.Itoa(seconds) + ")",
				},
				Down: []string{
					"SELECT 1",
				},
			},
		},
	}
}
