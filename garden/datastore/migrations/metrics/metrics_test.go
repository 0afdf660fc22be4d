package metrics

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/realsystem/gardening-service-sub002/metrics"
)

var migrationID = "foo_migration_id"

func mockTimeSince(t *testing.T, d time.Duration) {
	t.Helper()
	bkp := timeSince
	timeSince = func(_ time.Time) time.Duration { return d }
	t.Cleanup(func() { timeSince = bkp })
}

func TestInstrumentApply(t *testing.T) {
	mockTimeSince(t, 1*time.Second)
	InstrumentApply(migrationID, "up")()

	mockTimeSince(t, 2*time.Second)
	InstrumentApply(migrationID, "up")()

	var expected bytes.Buffer
	_, err := expected.WriteString(`
# HELP garden_migrations_apply_duration_seconds A histogram of latencies for individual schema migrations.
# TYPE garden_migrations_apply_duration_seconds histogram
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="0.5"} 0
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="1"} 1
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="2"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="5"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="10"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="15"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="30"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="60"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="120"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="300"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="600"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="900"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="1800"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="3600"} 2
garden_migrations_apply_duration_seconds_bucket{direction="up",migration_id="foo_migration_id",le="+Inf"} 2
garden_migrations_apply_duration_seconds_sum{direction="up",migration_id="foo_migration_id"} 3
garden_migrations_apply_duration_seconds_count{direction="up",migration_id="foo_migration_id"} 2
`)
	require.NoError(t, err)
	durationFullName := fmt.Sprintf("%s_%s_%s", metrics.NamespacePrefix, subsystem, applyDurationName)

	err = testutil.GatherAndCompare(prometheus.DefaultGatherer, &expected, durationFullName)
	require.NoError(t, err)
}

func TestMigrationApplied(t *testing.T) {
	MigrationApplied("up")
	MigrationApplied("up")
	MigrationApplied("down")

	var expected bytes.Buffer
	_, err := expected.WriteString(`
# HELP garden_migrations_applied_total A counter of applied schema migrations.
# TYPE garden_migrations_applied_total counter
garden_migrations_applied_total{direction="down"} 1
garden_migrations_applied_total{direction="up"} 2
`)
	require.NoError(t, err)
	totalFullName := fmt.Sprintf("%s_%s_%s", metrics.NamespacePrefix, subsystem, appliedTotalName)

	err = testutil.GatherAndCompare(prometheus.DefaultGatherer, &expected, totalFullName)
	require.NoError(t, err)
}

func TestInstrumentLockWait(t *testing.T) {
	mockTimeSince(t, 1*time.Second)
	InstrumentLockWait()(false)

	mockTimeSince(t, 3*time.Second)
	InstrumentLockWait()(true)

	var expected bytes.Buffer
	_, err := expected.WriteString(`
# HELP garden_migrations_lock_wait_duration_seconds A histogram of latencies for acquiring the schema migration lock.
# TYPE garden_migrations_lock_wait_duration_seconds histogram
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="0.005"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="0.01"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="0.025"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="0.05"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="0.1"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="0.25"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="0.5"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="1"} 1
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="2.5"} 1
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="5"} 1
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="10"} 1
garden_migrations_lock_wait_duration_seconds_bucket{error="false",le="+Inf"} 1
garden_migrations_lock_wait_duration_seconds_sum{error="false"} 1
garden_migrations_lock_wait_duration_seconds_count{error="false"} 1
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="0.005"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="0.01"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="0.025"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="0.05"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="0.1"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="0.25"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="0.5"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="1"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="2.5"} 0
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="5"} 1
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="10"} 1
garden_migrations_lock_wait_duration_seconds_bucket{error="true",le="+Inf"} 1
garden_migrations_lock_wait_duration_seconds_sum{error="true"} 3
garden_migrations_lock_wait_duration_seconds_count{error="true"} 1
`)
	require.NoError(t, err)
	durationFullName := fmt.Sprintf("%s_%s_%s", metrics.NamespacePrefix, subsystem, lockWaitDurationName)

	err = testutil.GatherAndCompare(prometheus.DefaultGatherer, &expected, durationFullName)
	require.NoError(t, err)
}
