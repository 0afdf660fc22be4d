package configuration

import (
	"fmt"
	"io"
	"reflect"
	"time"
)

// Configuration is a versioned gardening service configuration, intended to
// be provided by a yaml file, and optionally modified by environment
// variables.
type Configuration struct {
	// Version is the version which defines the format of the rest of the
	// configuration
	Version Version `yaml:"version"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log Log `yaml:"log,omitempty"`

	// Database configures the connection to the service metadata database.
	Database Database `yaml:"database,omitempty"`

	// Reporting is the configuration for error reporting.
	Reporting Reporting `yaml:"reporting,omitempty"`
}

// Log supports setting various parameters related to the logging subsystem.
type Log struct {
	// Level is the granularity at which service operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the default formatter with another. Options
	// include "text" and "json".
	Formatter string `yaml:"formatter,omitempty"`

	// Output sets the destination to which log entries are written.
	// Options include "stdout" and "stderr".
	Output string `yaml:"output,omitempty"`

	// Fields allows users to specify static string fields to include in
	// the logger context.
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Loglevel is the level at which operations are logged. This can be error,
// warn, info, debug or trace.
type Loglevel string

const (
	LogLevelError Loglevel = "error"
	LogLevelWarn  Loglevel = "warn"
	LogLevelInfo  Loglevel = "info"
	LogLevelDebug Loglevel = "debug"
	LogLevelTrace Loglevel = "trace"
)

// DatabaseTLS groups the TLS parameters of the database connection. They are
// inlined into the database block of the configuration file.
type DatabaseTLS struct {
	// SSLMode is the connection SSL mode, as understood by PostgreSQL.
	SSLMode string `yaml:"sslmode,omitempty"`

	// SSLCert is the path to the client certificate file.
	SSLCert string `yaml:"sslcert,omitempty"`

	// SSLKey is the path to the client private key file.
	SSLKey string `yaml:"sslkey,omitempty"`

	// SSLRootCert is the path to the root certificate file.
	SSLRootCert string `yaml:"sslrootcert,omitempty"`
}

// Database is the configuration for the service metadata database.
type Database struct {
	DatabaseTLS `yaml:",inline"`

	// Enabled reports whether the metadata database is active.
	Enabled bool `yaml:"enabled,omitempty"`

	// Host is the database server hostname.
	Host string `yaml:"host,omitempty"`

	// Port is the database server port.
	Port int `yaml:"port,omitempty"`

	// User is the database connection username.
	User string `yaml:"user,omitempty"`

	// Password is the database connection password.
	Password string `yaml:"password,omitempty"`

	// DBName is the database name.
	DBName string `yaml:"dbname,omitempty"`

	// ConnectTimeout is the maximum wait for a connection.
	ConnectTimeout time.Duration `yaml:"connecttimeout,omitempty"`

	// PreparedStatements enables driver-side prepared statements. Leave
	// disabled when connecting through PgBouncer in transaction pooling
	// mode.
	PreparedStatements bool `yaml:"preparedstatements,omitempty"`

	// Pool holds the connection pool settings.
	Pool struct {
		// MaxIdle sets the maximum number of connections in the idle
		// connection pool.
		MaxIdle int `yaml:"maxidle,omitempty"`

		// MaxOpen sets the maximum number of open connections to the
		// database.
		MaxOpen int `yaml:"maxopen,omitempty"`

		// MaxLifetime sets the maximum amount of time a connection may be
		// reused.
		MaxLifetime time.Duration `yaml:"maxlifetime,omitempty"`

		// MaxIdleTime sets the maximum amount of time a connection may be
		// idle before being closed.
		MaxIdleTime time.Duration `yaml:"maxidletime,omitempty"`
	} `yaml:"pool,omitempty"`
}

// Reporting defines error reporting methods.
type Reporting struct {
	// Sentry configures error reporting for Sentry (sentry.io).
	Sentry SentryReporting `yaml:"sentry,omitempty"`
}

// SentryReporting configures error reporting for Sentry (sentry.io).
type SentryReporting struct {
	// Enabled turns Sentry reporting on.
	Enabled bool `yaml:"enabled,omitempty"`

	// DSN is the Sentry project DSN.
	DSN string `yaml:"dsn,omitempty"`

	// Environment is the Sentry environment, e.g. "production".
	Environment string `yaml:"environment,omitempty"`
}

// v0_1Configuration is a Version 0.1 Configuration struct
// This is currently aliased to Configuration, as it is the current version
type v0_1Configuration Configuration

// CurrentVersion is the most recent Version that can be parsed
var CurrentVersion = MajorMinorVersion(0, 1)

const (
	defaultLogLevel     = LogLevelInfo
	defaultDatabasePort = 5432
)

// Parse parses an input configuration yaml document into a Configuration
// struct. This should generally be capable of handling old configuration
// format versions.
//
// Environment variables may be used to override configuration parameters
// other than version, following the scheme below:
// Configuration.Abc may be replaced by the value of GARDEN_ABC,
// Configuration.Abc.Xyz may be replaced by the value of GARDEN_ABC_XYZ, and
// so forth.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("garden", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c any) (any, error) {
				v0_1, ok := c.(*v0_1Configuration)
				if !ok {
					return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
				}
				if v0_1.Log.Level == "" {
					v0_1.Log.Level = defaultLogLevel
				}
				if v0_1.Database.Enabled {
					if v0_1.Database.Host == "" {
						return nil, fmt.Errorf("database host is required")
					}
					if v0_1.Database.DBName == "" {
						return nil, fmt.Errorf("database dbname is required")
					}
					if v0_1.Database.Port == 0 {
						v0_1.Database.Port = defaultDatabasePort
					}
				}
				return (*Configuration)(v0_1), nil
			},
		},
	})

	config := new(Configuration)
	if err := p.Parse(in, config); err != nil {
		return nil, err
	}

	return config, nil
}
