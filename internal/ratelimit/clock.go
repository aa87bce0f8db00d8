package ratelimit

import "time"

// Clock provides the current time. Components take a Clock instead of
// calling time.Now directly so tests can drive the window deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
