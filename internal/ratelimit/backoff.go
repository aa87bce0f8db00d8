package ratelimit

import "time"

// Backoff computes escalating lockout durations after repeated
// violations: base * 2^(n-1), capped at max. A violation count of zero
// means no lockout.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches the shipped configuration: 1s doubling up to 1h.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: time.Hour}
}

// Lockout returns the lockout duration for the given violation count.
// The result is monotonically non-decreasing in violationCount and never
// exceeds Max.
func (b Backoff) Lockout(violationCount int) time.Duration {
	if violationCount <= 0 || b.Base <= 0 {
		return 0
	}
	// Shifting past 62 bits would overflow time.Duration; the cap applies
	// long before that for any sane configuration.
	shift := violationCount - 1
	if shift > 62 {
		return b.Max
	}
	d := b.Base << uint(shift)
	if d <= 0 || d > b.Max {
		return b.Max
	}
	return d
}
