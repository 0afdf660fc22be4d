package garden

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/realsystem/gardening-service-sub002/configuration"
	"github.com/realsystem/gardening-service-sub002/garden/datastore"
	"github.com/realsystem/gardening-service-sub002/version"
)

// resolveConfiguration loads the configuration from the path given as the
// first command argument, falling back to the GARDEN_CONFIGURATION_PATH
// environment variable.
func resolveConfiguration(args []string) (*configuration.Configuration, error) {
	var configurationPath string

	if len(args) > 0 {
		configurationPath = args[0]
	} else if os.Getenv("GARDEN_CONFIGURATION_PATH") != "" {
		configurationPath = os.Getenv("GARDEN_CONFIGURATION_PATH")
	}

	if configurationPath == "" {
		return nil, errors.New("configuration path unspecified")
	}

	fp, err := os.Open(configurationPath)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configurationPath, err)
	}

	return config, nil
}

func logLevel(level configuration.Loglevel) logrus.Level {
	l, err := logrus.ParseLevel(string(level))
	if err != nil {
		l = logrus.InfoLevel
		logrus.Warnf("error parsing level %q: %v, using %q", level, err, l)
	}
	return l
}

// configureLogging applies the log section of the configuration to the
// process-wide logger, which every component picks up as its default.
func configureLogging(config *configuration.Configuration) error {
	logger := logrus.StandardLogger()
	logger.SetLevel(logLevel(config.Log.Level))

	formatter := config.Log.Formatter
	if formatter == "" {
		formatter = "text"
	}
	switch formatter {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339Nano})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return fmt.Errorf("unsupported log formatter: %q", config.Log.Formatter)
	}

	switch config.Log.Output {
	case "", "stderr":
		logger.SetOutput(os.Stderr)
	case "stdout":
		logger.SetOutput(os.Stdout)
	default:
		return fmt.Errorf("unsupported log output: %q", config.Log.Output)
	}

	if len(config.Log.Fields) > 0 {
		logger.AddHook(&staticFieldsHook{fields: config.Log.Fields})
	}

	if config.Reporting.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.Reporting.Sentry.DSN,
			Environment: config.Reporting.Sentry.Environment,
			Release:     version.Version,
		})
		if err != nil {
			return fmt.Errorf("configuring sentry reporting: %w", err)
		}
		logger.AddHook(&sentryHook{})
	}

	return nil
}

// staticFieldsHook stamps the configured static fields on every log entry.
type staticFieldsHook struct {
	fields map[string]any
}

func (*staticFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *staticFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// sentryHook forwards error level log entries to Sentry.
type sentryHook struct{}

func (*sentryHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (*sentryHook) Fire(entry *logrus.Entry) error {
	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = entry.Message
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		event.Extra[k] = v
	}
	sentry.CaptureEvent(event)
	return nil
}

// dbFromConfig opens a connection to the primary database described by the
// configuration.
func dbFromConfig(config *configuration.Configuration) (*datastore.DB, error) {
	if !config.Database.Enabled {
		return nil, errors.New("the metadata database is not enabled in the configuration")
	}

	dsn := &datastore.DSN{
		Host:           config.Database.Host,
		Port:           config.Database.Port,
		User:           config.Database.User,
		Password:       config.Database.Password,
		DBName:         config.Database.DBName,
		SSLMode:        config.Database.SSLMode,
		SSLCert:        config.Database.SSLCert,
		SSLKey:         config.Database.SSLKey,
		SSLRootCert:    config.Database.SSLRootCert,
		ConnectTimeout: config.Database.ConnectTimeout,
	}

	db, err := datastore.NewConnector().Open(context.Background(), dsn,
		datastore.WithLogger(logrus.NewEntry(logrus.StandardLogger())),
		datastore.WithLogLevel(config.Log.Level),
		datastore.WithPreparedStatements(config.Database.PreparedStatements),
		datastore.WithPoolConfig(&datastore.PoolConfig{
			MaxIdle:     config.Database.Pool.MaxIdle,
			MaxOpen:     config.Database.Pool.MaxOpen,
			MaxLifetime: config.Database.Pool.MaxLifetime,
			MaxIdleTime: config.Database.Pool.MaxIdleTime,
		}),
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// migrationDBFromConfig opens the database for migration commands. It
// refuses a server in recovery mode, as migrations must only ever run
// against the primary.
func migrationDBFromConfig(config *configuration.Configuration) (*datastore.DB, error) {
	db, err := dbFromConfig(config)
	if err != nil {
		return nil, err
	}

	inRecovery, err := datastore.IsInRecovery(context.Background(), db)
	if err != nil {
		return nil, fmt.Errorf("checking database recovery status: %w", err)
	}
	if inRecovery {
		return nil, errors.New("the database is in recovery mode, migrations require the primary")
	}

	return db, nil
}
