// Package system provides the wall clock used to stamp runs.
package system

import "time"

// Clock implements scraper.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to microseconds so it
// survives a round trip through Postgres TIMESTAMPTZ.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
