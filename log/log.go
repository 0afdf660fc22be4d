package log

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields is the set of structured key/value pairs attached to a log entry.
type Fields map[string]any

// Logger is the minimal leveled logging interface used across the
// application. It is satisfied by logrus-backed loggers and allows swapping
// the underlying implementation without touching call sites.
type Logger interface {
	WithFields(f Fields) Logger
	WithError(err error) Logger

	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// LoggerKey is the context key under which a Logger travels in a
// context.Context.
type LoggerKey struct{}

type loggerOptions struct {
	ctx  context.Context
	keys []any
}

// LoggerOption configures a GetLogger lookup.
type LoggerOption func(*loggerOptions)

// WithContext makes GetLogger look for a Logger in ctx before falling back
// to the default logger.
func WithContext(ctx context.Context) LoggerOption {
	return func(opts *loggerOptions) {
		opts.ctx = ctx
	}
}

// WithKeys makes GetLogger copy the values stored in the context under keys
// into the returned logger's fields. Requires WithContext.
func WithKeys(keys ...any) LoggerOption {
	return func(opts *loggerOptions) {
		opts.keys = keys
	}
}

// GetLogger returns the most specific Logger available: the one stored in
// the provided context, if any, otherwise a logger backed by the logrus
// standard logger.
func GetLogger(opts ...LoggerOption) Logger {
	config := loggerOptions{}
	for _, v := range opts {
		v(&config)
	}

	logger := fromContext(config.ctx)

	if config.ctx != nil && len(config.keys) > 0 {
		fields := Fields{}
		for _, key := range config.keys {
			v := config.ctx.Value(key)
			if v != nil {
				fields[standardizedKey(fmt.Sprint(key))] = v
			}
		}
		logger = logger.WithFields(fields)
	}

	return logger
}

// ToContext returns a copy of ctx carrying logger.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

// FromLogrusLogger wraps a *logrus.Logger as a Logger.
func FromLogrusLogger(logger *logrus.Logger) Logger {
	return &logrusLogger{logrus.NewEntry(logger)}
}

// FromLogrusEntry wraps a *logrus.Entry as a Logger.
func FromLogrusEntry(entry *logrus.Entry) Logger {
	return &logrusLogger{entry}
}

func fromContext(ctx context.Context) Logger {
	if ctx == nil {
		return FromLogrusLogger(logrus.StandardLogger())
	}

	switch v := ctx.Value(LoggerKey{}).(type) {
	case Logger:
		return v
	case *logrus.Entry:
		return &logrusLogger{v}
	case *logrus.Logger:
		return FromLogrusLogger(v)
	default:
		return FromLogrusLogger(logrus.StandardLogger())
	}
}

// Log keys carrying dots are flattened for downstream log processors.
func standardizedKey(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) WithFields(f Fields) Logger {
	return &logrusLogger{l.entry.WithFields(logrus.Fields(f))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{l.entry.WithError(err)}
}

func (l *logrusLogger) Trace(args ...any) { l.entry.Trace(args...) }
func (l *logrusLogger) Debug(args ...any) { l.entry.Debug(args...) }
func (l *logrusLogger) Info(args ...any)  { l.entry.Info(args...) }
func (l *logrusLogger) Warn(args ...any)  { l.entry.Warn(args...) }
func (l *logrusLogger) Error(args ...any) { l.entry.Error(args...) }

func (l *logrusLogger) Tracef(format string, args ...any) { l.entry.Tracef(format, args...) }
func (l *logrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
