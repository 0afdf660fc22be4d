package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/realsystem/gardening-service-sub002/metrics"
)

var (
	timeSince         = time.Since // for test purposes only
	applyDurationHist *prometheus.HistogramVec
	appliedCounter    *prometheus.CounterVec
	lockWaitHist      *prometheus.HistogramVec
	applyBuckets      = []float64{.5, 1, 2, 5, 10, 15, 30, 60, 120, 300, 600, 900, 1800, 3600} // 0.5s to 1h
)

const (
	subsystem = "migrations"

	applyDurationName = "apply_duration_seconds"
	applyDurationDesc = "A histogram of latencies for individual schema migrations."

	appliedTotalName = "applied_total"
	appliedTotalDesc = "A counter of applied schema migrations."

	lockWaitDurationName = "lock_wait_duration_seconds"
	lockWaitDurationDesc = "A histogram of latencies for acquiring the schema migration lock."

	migrationIDLabel = "migration_id"
	directionLabel   = "direction"
	errorLabel       = "error"
)

func init() {
	applyDurationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      applyDurationName,
			Help:      applyDurationDesc,
			Buckets:   applyBuckets,
		},
		[]string{migrationIDLabel, directionLabel},
	)

	appliedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      appliedTotalName,
			Help:      appliedTotalDesc,
		},
		[]string{directionLabel},
	)

	lockWaitHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      lockWaitDurationName,
			Help:      lockWaitDurationDesc,
			Buckets:   prometheus.DefBuckets,
		},
		[]string{errorLabel},
	)

	prometheus.MustRegister(applyDurationHist)
	prometheus.MustRegister(appliedCounter)
	prometheus.MustRegister(lockWaitHist)
}

// InstrumentApply starts a timer to measure the duration of a single schema
// migration. Returns a function to stop the timer and capture the migration's
// latency.
func InstrumentApply(migrationID, direction string) func() {
	start := time.Now()
	return func() {
		applyDurationHist.WithLabelValues(migrationID, direction).Observe(timeSince(start).Seconds())
	}
}

// MigrationApplied captures a successfully applied schema migration.
func MigrationApplied(direction string) {
	appliedCounter.WithLabelValues(direction).Inc()
}

// InstrumentLockWait starts a timer to measure the wait for the schema
// migration lock. Returns a function to stop the timer and record whether the
// lock was acquired.
func InstrumentLockWait() func(failed bool) {
	start := time.Now()
	return func(failed bool) {
		lockWaitHist.WithLabelValues(strconv.FormatBool(failed)).Observe(timeSince(start).Seconds())
	}
}
