// Package testutil provides helpers for tests that need a real database.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/realsystem/gardening-service-sub002/garden/datastore"
)

var (
	containerOnce sync.Once
	containerDSN  *datastore.DSN
	containerErr  error
)

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// NewDSNFromEnv builds a DSN from the GARDEN_DATABASE_* environment
// variables. When GARDEN_TESTCONTAINERS is set to a true value, a disposable
// database server is started instead and shared by all tests in the process.
func NewDSNFromEnv() (*datastore.DSN, error) {
	if ok, _ := strconv.ParseBool(os.Getenv("GARDEN_TESTCONTAINERS")); ok {
		return embeddedDSN(context.Background())
	}

	port, err := strconv.Atoi(envOr("GARDEN_DATABASE_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("parsing GARDEN_DATABASE_PORT: %w", err)
	}

	return &datastore.DSN{
		Host:     envOr("GARDEN_DATABASE_HOST", "localhost"),
		Port:     port,
		User:     envOr("GARDEN_DATABASE_USER", "postgres"),
		Password: os.Getenv("GARDEN_DATABASE_PASSWORD"),
		DBName:   envOr("GARDEN_DATABASE_DBNAME", "garden_test"),
		SSLMode:  envOr("GARDEN_DATABASE_SSLMODE", "disable"),
	}, nil
}

// NewDBFromEnv opens a connection to the test database described by the
// GARDEN_DATABASE_* environment variables.
func NewDBFromEnv() (*datastore.DB, error) {
	dsn, err := NewDSNFromEnv()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	return datastore.NewConnector().Open(ctx, dsn)
}

// embeddedDSN starts a single database container for the test process. The
// container is reaped when the process exits, so there is no explicit
// termination.
func embeddedDSN(ctx context.Context) (*datastore.DSN, error) {
	containerOnce.Do(func() {
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("garden_test"),
			postgres.WithUsername("garden"),
			postgres.WithPassword("secret"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(1*time.Minute)),
		)
		if err != nil {
			containerErr = fmt.Errorf("starting embedded database: %w", err)
			return
		}

		host, err := ctr.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("resolving embedded database host: %w", err)
			return
		}

		port, err := ctr.MappedPort(ctx, "5432/tcp")
		if err != nil {
			containerErr = fmt.Errorf("resolving embedded database port: %w", err)
			return
		}

		containerDSN = &datastore.DSN{
			Host:     host,
			Port:     port.Int(),
			User:     "garden",
			Password: "secret",
			DBName:   "garden_test",
			SSLMode:  "disable",
		}
	})

	return containerDSN, containerErr
}
