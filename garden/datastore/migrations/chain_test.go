package migrations

import (
	"testing"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/require"
)

func chainMigration(id, parent string) *Migration {
	return &Migration{
		Migration: &migrate.Migration{Id: id},
		Parent:    parent,
	}
}

func TestResolveChain(t *testing.T) {
	tests := []struct {
		name          string
		migrations    []*Migration
		expectedOrder []string
		expectedErrs  []string
	}{
		{
			name:          "empty set",
			migrations:    nil,
			expectedOrder: nil,
		},
		{
			name: "single root",
			migrations: []*Migration{
				chainMigration("001_create", ""),
			},
			expectedOrder: []string{"001_create"},
		},
		{
			name: "valid chain in registration order",
			migrations: []*Migration{
				chainMigration("001_create", ""),
				chainMigration("002_alter", "001_create"),
				chainMigration("003_index", "002_alter"),
			},
			expectedOrder: []string{"001_create", "002_alter", "003_index"},
		},
		{
			name: "valid chain out of registration order",
			migrations: []*Migration{
				chainMigration("003_index", "002_alter"),
				chainMigration("001_create", ""),
				chainMigration("002_alter", "001_create"),
			},
			expectedOrder: []string{"001_create", "002_alter", "003_index"},
		},
		{
			name: "duplicate ID",
			migrations: []*Migration{
				chainMigration("001_create", ""),
				chainMigration("001_create", ""),
			},
			expectedErrs: []string{"duplicate migration ID 001_create"},
		},
		{
			name: "multiple roots",
			migrations: []*Migration{
				chainMigration("001_create", ""),
				chainMigration("002_alter", ""),
			},
			expectedErrs: []string{"multiple migrations without a parent: 001_create and 002_alter"},
		},
		{
			name: "no root",
			migrations: []*Migration{
				chainMigration("001_create", "000_bootstrap"),
			},
			expectedErrs: []string{
				"migration 001_create references unknown parent 000_bootstrap",
				"no migration without a parent",
			},
		},
		{
			name: "unknown parent",
			migrations: []*Migration{
				chainMigration("001_create", ""),
				chainMigration("002_alter", "001_creat"),
			},
			expectedErrs: []string{"migration 002_alter references unknown parent 001_creat"},
		},
		{
			name: "branching chain",
			migrations: []*Migration{
				chainMigration("001_create", ""),
				chainMigration("002_alter", "001_create"),
				chainMigration("003_index", "001_create"),
			},
			expectedErrs: []string{"migrations 002_alter and 003_index share parent 001_create"},
		},
		{
			name: "cycle disconnected from root",
			migrations: []*Migration{
				chainMigration("001_create", ""),
				chainMigration("002_alter", "003_index"),
				chainMigration("003_index", "002_alter"),
			},
			expectedErrs: []string{"2 of 3 migrations are not reachable from 001_create"},
		},
		{
			name: "chain order diverges from ID order",
			migrations: []*Migration{
				chainMigration("002_alter", ""),
				chainMigration("001_create", "002_alter"),
			},
			expectedErrs: []string{"chain order diverges from ID order at 002_alter"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain, err := ResolveChain(tc.migrations)

			if len(tc.expectedErrs) > 0 {
				require.Error(t, err)
				for _, want := range tc.expectedErrs {
					require.ErrorContains(t, err, want)
				}
				require.Nil(t, chain)
				return
			}

			require.NoError(t, err)

			var order []string
			for _, m := range chain {
				order = append(order, m.Id)
			}
			require.Equal(t, tc.expectedOrder, order)
		})
	}
}

func TestResolveChain_AggregatesAllProblems(t *testing.T) {
	_, err := ResolveChain([]*Migration{
		chainMigration("001_create", ""),
		chainMigration("001_create", ""),
		chainMigration("002_alter", "000_bootstrap"),
		chainMigration("003_index", ""),
	})

	require.ErrorIs(t, err, ErrChainInvalid)
	require.ErrorContains(t, err, "duplicate migration ID 001_create")
	require.ErrorContains(t, err, "migration 002_alter references unknown parent 000_bootstrap")
	require.ErrorContains(t, err, "multiple migrations without a parent: 001_create and 003_index")
}

func TestResolveChain_RegisteredMigrations(t *testing.T) {
	chain, err := ResolveChain(All())
	require.NoError(t, err)

	var order []string
	for _, m := range chain {
		order = append(order, m.Id)
	}
	require.Equal(t, []string{
		"20250301085745_create_users_table",
		"20250301090512_create_gardens_table",
		"20250312113304_create_plants_table",
		"20250320101156_create_planting_events_table",
		"20250415093217_add_users_unit_system_column",
		"20250506142301_add_plants_days_to_harvest_column",
		"20250522081342_add_planting_events_position_columns",
		"20250601101530_add_planting_events_planted_at_index",
	}, order)

	require.Empty(t, chain[0].Parent)
	for i := 1; i < len(chain); i++ {
		require.Equal(t, chain[i-1].Id, chain[i].Parent)
	}

	// Post-deployment migrations must trail the chain so that skipping them
	// never skips over a pending regular migration.
	require.True(t, chain[len(chain)-1].PostDeployment)
	for _, m := range chain[:len(chain)-1] {
		require.False(t, m.PostDeployment, m.Id)
	}
}
