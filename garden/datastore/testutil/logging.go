package testutil

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/realsystem/gardening-service-sub002/log"
)

type logWriterType struct {
	tb testing.TB
}

func (l logWriterType) Write(p []byte) (n int, err error) {
	l.tb.Log(string(p))
	return len(p), nil
}

// NewTestLogger returns a debug level logger that writes through tb, so that
// output emitted during a test stays attached to the test that produced it.
func NewTestLogger(tb testing.TB) log.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(logWriterType{tb: tb})

	return log.FromLogrusEntry(logger.WithField("test", true))
}
