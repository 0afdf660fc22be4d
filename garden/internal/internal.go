package internal

import "time"

// Clock is a generic interface for clocks, satisfied by
// github.com/benbjohnson/clock implementations. It exists so that tests can
// mock time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
}

// Backoff is the subset of github.com/cenkalti/backoff/v4 used to pace
// retries.
type Backoff interface {
	NextBackOff() time.Duration
	Reset()
}
