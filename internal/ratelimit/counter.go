package ratelimit

import (
	"context"
	"time"
)

// Counter answers "how many requests has this identifier made within the
// trailing window?" using sliding-window-log semantics: every request is
// a timestamped entry, entries older than the window are pruned, and the
// count is exact (never approximated into fixed buckets).
//
// Implementations must be linearizable per identifier: two concurrent
// Record calls for the same identifier must both be counted, and neither
// may observe a count that undercounts the other.
type Counter interface {
	// Record appends an entry for the identifier at now, prunes entries
	// older than the window, and returns the resulting count including
	// the new entry.
	Record(ctx context.Context, identifier string, now time.Time, window time.Duration) (int, error)

	// Peek returns the current count without consuming quota.
	Peek(ctx context.Context, identifier string, now time.Time, window time.Duration) (int, error)

	// Reset clears all entries for the identifier (administrative override).
	Reset(ctx context.Context, identifier string) error
}
