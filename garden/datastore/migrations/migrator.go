package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/realsystem/gardening-service-sub002/garden/datastore"
	"github.com/realsystem/gardening-service-sub002/garden/datastore/migrations/metrics"
	"github.com/realsystem/gardening-service-sub002/garden/internal"
	"github.com/realsystem/gardening-service-sub002/log"
	migrate "github.com/rubenv/sql-migrate"
	"gitlab.com/gitlab-org/labkit/correlation"
)

const (
	migrationTableName = "schema_migrations"
	dialect            = "postgres"

	componentKey = "component"
	migratorName = "migrations.Migrator"

	upLabel   = "up"
	downLabel = "down"

	// lockSalt is combined with a hash of the target database name to form
	// the advisory lock key, so that migrators targeting different databases
	// on the same server do not contend and the key does not clash with
	// application locks.
	lockSalt = 2016398647

	backoffJitterFactor = 0.33
)

// ErrLockInUse is returned when the schema migration lock is held by another
// process and could not be acquired within the configured timeout.
var ErrLockInUse = errors.New("schema migration lock is held by another process")

var (
	defaultLockTimeout = 30 * time.Second

	backoffInitInterval = 1 * time.Second
	backoffMaxInterval  = 5 * time.Second

	// for testing purposes (mocks)
	backoffConstructor                = newBackoff
	systemClock        internal.Clock = clock.New()
	newCorrelationID                  = correlation.SafeRandomID
)

func init() {
	migrate.SetTable(migrationTableName)
}

func newBackoff(initInterval, maxInterval time.Duration) internal.Backoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initInterval
	b.MaxInterval = maxInterval
	b.RandomizationFactor = backoffJitterFactor
	b.MaxElapsedTime = 0
	b.Clock = systemClock
	b.Reset()

	return b
}

// MigratorImpl is the main implementation of the migrator for the database
// schema.
type MigratorImpl struct {
	db         *sql.DB
	dbName     string
	table      string
	migrations []*Migration

	skipPostDeployment bool
	lockTimeout        time.Duration
	logger             log.Logger

	resolveOnce sync.Once
	chain       []*Migration
	resolveErr  error
}

// NewMigrator creates a new MigratorImpl.
func NewMigrator(dsdb *datastore.DB, opts ...MigratorOption) *MigratorImpl {
	var (
		db     *sql.DB
		dbName string
	)
	if dsdb != nil {
		db = dsdb.DB
		if dsdb.DSN != nil {
			dbName = dsdb.DSN.DBName
		}
	}
	m := &MigratorImpl{
		db:          db,
		dbName:      dbName,
		table:       migrationTableName,
		migrations:  allMigrations,
		lockTimeout: defaultLockTimeout,
		logger:      log.GetLogger(),
	}

	for _, o := range opts {
		o(m)
	}

	return m
}

// MigratorOption enables the creation of functional options for the
// configuration of the migrator.
type MigratorOption func(m *MigratorImpl)

// Source allows the migrator to use an alternative source of migrations, used
// for testing.
func Source(a []*Migration) MigratorOption {
	return func(m *MigratorImpl) {
		m.migrations = a
	}
}

// WithTable allows the migrator to record applied migrations in an
// alternative table. The migration library tracks the table name globally, so
// migrators with different tables must not be used concurrently within the
// same process.
func WithTable(name string) MigratorOption {
	return func(m *MigratorImpl) {
		m.table = name
	}
}

// SkipPostDeployment configures the migrator to not apply postdeployment migrations.
func SkipPostDeployment() MigratorOption {
	return func(m *MigratorImpl) {
		m.skipPostDeployment = true
	}
}

// WithLockTimeout configures how long the migrator waits for the schema
// migration lock before giving up with ErrLockInUse. A zero timeout makes a
// single attempt.
func WithLockTimeout(d time.Duration) MigratorOption {
	return func(m *MigratorImpl) {
		m.lockTimeout = d
	}
}

// WithLogger configures the logger used to report migration progress.
func WithLogger(l log.Logger) MigratorOption {
	return func(m *MigratorImpl) {
		m.logger = l
	}
}

// Reconfigure is used to change the configuration of an existing Migrator
// using given config option. The previously resolved migration chain is
// discarded.
func (m *MigratorImpl) Reconfigure(f MigratorOption) {
	f(m)
	m.resolveOnce = sync.Once{}
	m.chain = nil
	m.resolveErr = nil
}

// prepare resolves the migration chain once and points the migration library
// at this migrator's history table. A chain problem makes every subsequent
// operation fail with the same error.
func (m *MigratorImpl) prepare() error {
	m.resolveOnce.Do(func() {
		m.chain, m.resolveErr = ResolveChain(m.migrations)
	})
	if m.resolveErr != nil {
		return m.resolveErr
	}
	migrate.SetTable(m.table)

	return nil
}

// Version returns the current applied migration version (if any).
func (m *MigratorImpl) Version() (string, error) {
	if err := m.prepare(); err != nil {
		return "", err
	}
	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	return records[len(records)-1].Id, nil
}

// LatestVersion identifies the version of the most recent known migration (if any).
func (m *MigratorImpl) LatestVersion() (string, error) {
	if err := m.prepare(); err != nil {
		return "", err
	}
	all, err := m.eligibleMigrations()
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "", nil
	}

	return all[len(all)-1].Id, nil
}

// Up applies all pending up migrations. Returns the number of applied
// migrations.
func (m *MigratorImpl) Up() (int, error) {
	return m.UpN(0)
}

// UpN applies up to n pending up migrations. All pending migrations will be
// applied if n is 0. Returns the number of applied migrations.
func (m *MigratorImpl) UpN(n int) (int, error) {
	if err := m.prepare(); err != nil {
		return 0, err
	}

	id := newCorrelationID()
	ctx := correlation.ContextWithCorrelation(context.Background(), id)
	l := m.logger.WithFields(log.Fields{componentKey: migratorName, correlation.FieldName: id})

	return m.withLock(ctx, l, func() (int, error) {
		return m.migrateUp(l, n)
	})
}

// UpNPlan plans up to n pending up migrations and returns the ordered list of migration IDs. All pending migrations
// will be planned if n is 0.
func (m *MigratorImpl) UpNPlan(n int) ([]string, error) {
	return m.plan(migrate.Up, n)
}

// Down applies all pending down migrations. Returns the number of applied
// migrations.
func (m *MigratorImpl) Down() (int, error) {
	return m.DownN(0)
}

// DownN applies up to n pending down migrations. All migrations will be
// applied if n is 0. Returns the number of applied migrations.
func (m *MigratorImpl) DownN(n int) (int, error) {
	if err := m.prepare(); err != nil {
		return 0, err
	}

	id := newCorrelationID()
	ctx := correlation.ContextWithCorrelation(context.Background(), id)
	l := m.logger.WithFields(log.Fields{componentKey: migratorName, correlation.FieldName: id})

	return m.withLock(ctx, l, func() (int, error) {
		return m.migrateDown(l, n)
	})
}

// DownNPlan plans up to n pending down migrations and returns the ordered list of migration IDs. All pending migrations
// will be planned if n is 0.
func (m *MigratorImpl) DownNPlan(n int) ([]string, error) {
	return m.plan(migrate.Down, n)
}

// MigrationStatus represents the status of a migration. Unknown will be set to true if a migration was applied but is
// not known by the current build.
type MigrationStatus struct {
	Unknown        bool
	PostDeployment bool
	AppliedAt      *time.Time
}

// Status returns the status of all migrations, indexed by migration ID.
func (m *MigratorImpl) Status() (map[string]*MigrationStatus, error) {
	if err := m.prepare(); err != nil {
		return nil, err
	}
	applied, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return nil, err
	}
	known, err := m.knownMigrations()
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]*MigrationStatus, len(applied))
	for _, k := range known {
		statuses[k.Id] = &MigrationStatus{}

		if mig := m.FindMigrationByID(k.Id); mig != nil && mig.PostDeployment {
			statuses[k.Id].PostDeployment = true
		}
	}

	for _, record := range applied {
		if _, ok := statuses[record.Id]; !ok {
			statuses[record.Id] = &MigrationStatus{Unknown: true}
		}

		statuses[record.Id].AppliedAt = &record.AppliedAt
	}

	return statuses, nil
}

// HasPending determines whether all known migrations are applied or not.
func (m *MigratorImpl) HasPending() (bool, error) {
	if err := m.prepare(); err != nil {
		return false, err
	}
	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return false, err
	}

	eligible, err := m.eligibleMigrations()
	if err != nil {
		return false, err
	}

	for _, k := range eligible {
		if !migrationApplied(records, k.Id) {
			return true, nil
		}
	}

	return false, nil
}

func (m *MigratorImpl) plan(direction migrate.MigrationDirection, limit int) ([]string, error) {
	if err := m.prepare(); err != nil {
		return nil, err
	}
	src, err := m.eligibleMigrationSource()
	if err != nil {
		return nil, err
	}

	planned, _, err := migrate.PlanMigration(m.db, dialect, src, direction, limit)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(planned))
	for _, p := range planned {
		result = append(result, p.Id)
	}

	return result, nil
}

func (m *MigratorImpl) knownMigrations() ([]*migrate.Migration, error) {
	return m.allMigrationSource().FindMigrations()
}

func (m *MigratorImpl) allMigrationSource() *migrate.MemoryMigrationSource {
	src := &migrate.MemoryMigrationSource{}

	for _, migration := range m.chain {
		src.Migrations = append(src.Migrations, migration.Migration)
	}

	return src
}

func (m *MigratorImpl) eligibleMigrations() ([]*migrate.Migration, error) {
	src, err := m.eligibleMigrationSource()
	if err != nil {
		return nil, err
	}

	return src.FindMigrations()
}

func (m *MigratorImpl) eligibleMigrationSource() (*migrate.MemoryMigrationSource, error) {
	src := &migrate.MemoryMigrationSource{}

	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return src, err
	}

	for _, migration := range m.chain {
		if m.skipPostDeployment && migration.PostDeployment &&
			// Do not skip already applied postdeployment migrations. The migration
			// library expects to see applied migrations when it plans a migration,
			// and we should ensure that down migrations affect all applied migrations.
			!migrationApplied(records, migration.Id) {
			continue
		}

		src.Migrations = append(src.Migrations, migration.Migration)
	}

	return src, nil
}

func migrationApplied(records []*migrate.MigrationRecord, id string) bool {
	for _, r := range records {
		if r.Id == id {
			return true
		}
	}

	return false
}

// FindMigrationByID returns the registered migration with the given ID, or
// nil if there is none.
func (m *MigratorImpl) FindMigrationByID(id string) *Migration {
	for _, mig := range m.migrations {
		if mig.Id == id {
			return mig
		}
	}
	return nil
}

// migrateUp applies up to 'maximum' pending up migrations (0 for unlimited),
// one migration per transaction, stopping at the first failure.
func (m *MigratorImpl) migrateUp(l log.Logger, maximum int) (int, error) {
	src, err := m.eligibleMigrationSource()
	if err != nil {
		return 0, fmt.Errorf("getting eligible migration source: %w", err)
	}

	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return 0, fmt.Errorf("retrieving migration records: %w", err)
	}
	applied := make(map[string]struct{}, len(records))
	for _, record := range records {
		applied[record.Id] = struct{}{}
	}

	sortedMigrations, err := src.FindMigrations()
	if err != nil {
		return 0, fmt.Errorf("finding migrations: %w", err)
	}

	count := 0
	for _, migration := range sortedMigrations {
		if maximum != 0 && count == maximum {
			break
		}
		if _, ok := applied[migration.Id]; ok {
			continue
		}

		start := systemClock.Now()
		if err := m.applyMigration(src, migration); err != nil {
			return count, err
		}
		count++

		l.WithFields(log.Fields{
			"migration_id": migration.Id,
			"direction":    upLabel,
			"duration_s":   systemClock.Since(start).Seconds(),
		}).Info("migration applied")
	}

	return count, nil
}

// migrateDown reverts up to 'limit' applied migrations (0 for unlimited),
// newest first, one migration per transaction, stopping at the first failure.
func (m *MigratorImpl) migrateDown(l log.Logger, limit int) (int, error) {
	src, err := m.eligibleMigrationSource()
	if err != nil {
		return 0, fmt.Errorf("getting eligible migration source: %w", err)
	}

	planned, _, err := migrate.PlanMigration(m.db, dialect, src, migrate.Down, limit)
	if err != nil {
		return 0, fmt.Errorf("planning down migrations: %w", err)
	}

	count := 0
	for _, p := range planned {
		start := systemClock.Now()
		if err := m.revertMigration(src, p.Id); err != nil {
			return count, err
		}
		count++

		l.WithFields(log.Fields{
			"migration_id": p.Id,
			"direction":    downLabel,
			"duration_s":   systemClock.Since(start).Seconds(),
		}).Info("migration reverted")
	}

	return count, nil
}

// applyMigration executes a single migration in the 'Up' direction.
func (m *MigratorImpl) applyMigration(src *migrate.MemoryMigrationSource, migration *migrate.Migration) error {
	report := metrics.InstrumentApply(migration.Id, upLabel)
	_, err := migrate.ExecVersion(m.db, dialect, src, migrate.Up, migration.VersionInt())
	report()
	if err != nil {
		return fmt.Errorf("applying migration %s: %w", migration.Id, err)
	}
	metrics.MigrationApplied(upLabel)

	return nil
}

// revertMigration executes a single migration in the 'Down' direction. The
// migration library reverts the most recently applied migration first, which
// is exactly the planned one while the schema migration lock is held.
func (m *MigratorImpl) revertMigration(src *migrate.MemoryMigrationSource, id string) error {
	report := metrics.InstrumentApply(id, downLabel)
	n, err := migrate.ExecMax(m.db, dialect, src, migrate.Down, 1)
	report()
	if err != nil {
		return fmt.Errorf("reverting migration %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("reverting migration %s: nothing to revert", id)
	}
	metrics.MigrationApplied(downLabel)

	return nil
}

// lockKey derives the advisory lock key for the target database.
func (m *MigratorImpl) lockKey() int64 {
	return lockSalt * int64(crc32.ChecksumIEEE([]byte(m.dbName)))
}

// withLock runs f while holding the schema migration lock.
func (m *MigratorImpl) withLock(ctx context.Context, l log.Logger, f func() (int, error)) (int, error) {
	conn, err := m.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := m.releaseLock(ctx, conn); err != nil {
			l.WithError(err).Warn("releasing schema migration lock")
		}
	}()

	return f()
}

// acquireLock obtains the schema migration advisory lock on a dedicated
// connection, retrying with backoff until the configured timeout elapses.
// Advisory locks are session scoped, so the returned connection must be kept
// open until the lock is released.
func (m *MigratorImpl) acquireLock(ctx context.Context) (*sql.Conn, error) {
	report := metrics.InstrumentLockWait()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		report(true)
		return nil, fmt.Errorf("acquiring schema migration lock: %w", err)
	}

	key := m.lockKey()
	b := backoffConstructor(backoffInitInterval, backoffMaxInterval)
	deadline := systemClock.Now().Add(m.lockTimeout)

	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
			conn.Close()
			report(true)
			return nil, fmt.Errorf("acquiring schema migration lock: %w", err)
		}
		if acquired {
			report(false)
			return conn, nil
		}

		sleep := b.NextBackOff()
		if m.lockTimeout == 0 || systemClock.Now().Add(sleep).After(deadline) {
			conn.Close()
			report(true)
			return nil, ErrLockInUse
		}
		systemClock.Sleep(sleep)
	}
}

// releaseLock releases the schema migration advisory lock and closes the
// connection it was held on.
func (m *MigratorImpl) releaseLock(ctx context.Context, conn *sql.Conn) error {
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", m.lockKey()).Scan(&released); err != nil {
		return fmt.Errorf("releasing schema migration lock: %w", err)
	}
	if !released {
		return errors.New("schema migration lock was not held")
	}

	return nil
}

// CanSkipPostDeploy checks whether post-deployment migrations (PDM) can be safely skipped.
// It ensures that all pending PDM are positioned at the end of the migration list.
// If a PDM appears between non-PDM, skipping is unsafe.
func (m *MigratorImpl) CanSkipPostDeploy(migrationlimit int) (bool, int, error) {
	if err := m.prepare(); err != nil {
		return false, 0, err
	}
	// retrieve applied migration records from the database.
	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return false, 0, fmt.Errorf("skip-post-deployment migration check failed: %w", err)
	}

	// sort pending migrations and classify post-deployment migrations.
	sortedMigrations, pendingPDSet := classifyPendingMigrations(migrationlimit, records, m.chain)

	// validate that all post-deployment migrations appear in the correct order.
	if failure, valid := validatePostDeployMigrationOrder(sortedMigrations, pendingPDSet); !valid {
		return false, failure.SafeToMigrateLimit, fmt.Errorf("cannot safely skip post-deployment migration: %s", failure.MigrationID)
	}

	return true, 0, nil
}

// PostDeployOrderFailure represents a failure case where a post-deployment migration is incorrectly ordered.
type PostDeployOrderFailure struct {
	MigrationID        string // id of the improperly ordered migration
	SafeToMigrateLimit int    // number of non-PDM that can be safely applied before failure
}

// validatePostDeployMigrationOrder ensures that post-deployment migrations are correctly positioned.
// It returns an error if a non-PDM appears after a pending PDM.
func validatePostDeployMigrationOrder(sortedMigrations []*migrate.Migration, pendingPDSet map[string]struct{}) (*PostDeployOrderFailure, bool) {
	var (
		lastPDID         string
		safeMigrateLimit int
		pdSeen           bool
	)

	for _, migration := range sortedMigrations {
		if _, isPostDeploy := pendingPDSet[migration.Id]; isPostDeploy {
			// mark the first occurrence of a post-deployment migration.
			lastPDID = migration.Id
			pdSeen = true
		} else if pdSeen {
			// a non-PDM appearing after a PDM is a violation.
			if safeMigrateLimit == 0 {
				safeMigrateLimit = -1 // no safe non-PDM can be applied.
			}
			return &PostDeployOrderFailure{
				MigrationID:        lastPDID,
				SafeToMigrateLimit: safeMigrateLimit,
			}, false
		}
		if !pdSeen {
			// Only count non-PDM that come before encountering a PDM.
			safeMigrateLimit++
		}
	}

	return nil, true
}

// classifyPendingMigrations sorts pending migrations and identifies post-deployment migrations.
func classifyPendingMigrations(migrationlimit int, appliedRecords []*migrate.MigrationRecord, known []*Migration) ([]*migrate.Migration, map[string]struct{}) {
	src := &migrate.MemoryMigrationSource{}
	pendingPDSet := make(map[string]struct{})
	pendingNonPDCount := 0

	// identify pending migrations
	for _, migration := range known {
		if migrationApplied(appliedRecords, migration.Id) {
			continue // skip already applied migrations
		}
		if migration.PostDeployment {
			pendingPDSet[migration.Id] = struct{}{} // track pending post-deployment migrations
		} else {
			pendingNonPDCount++
		}

		src.Migrations = append(src.Migrations, migration.Migration)

		// stop early if we've already reached the migration limit for non-post-deployment migrations
		if migrationlimit != 0 && pendingNonPDCount >= migrationlimit {
			// migrationlimit == 0 means no limit
			break
		}
	}

	// sort the migrations by ID
	sortedMigrations, _ := src.FindMigrations()

	return sortedMigrations, pendingPDSet
}
