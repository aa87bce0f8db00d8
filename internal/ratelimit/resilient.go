package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Counter store modes reported by ResilientCounter.Mode.
const (
	ModePrimary  = "primary"
	ModeFallback = "fallback"
)

// ResilientCounter fronts a primary Counter (Redis) with an in-process
// fallback. A primary failure opens a degraded window during which all
// calls go straight to the fallback; after the window elapses the next
// call probes the primary again. Failovers are logged and reported to
// the observer, never surfaced to the caller — availability wins over
// strict global consistency.
type ResilientCounter struct {
	primary       Counter
	fallback      Counter
	retryInterval time.Duration
	degradedUntil atomic.Int64 // Unix nanoseconds; 0 = healthy
	logger        *slog.Logger
	observer      Observer
}

// NewResilientCounter creates the failover facade. retryInterval controls
// how long the primary is bypassed after a failure before being probed
// again.
func NewResilientCounter(primary, fallback Counter, retryInterval time.Duration, logger *slog.Logger, observer Observer) *ResilientCounter {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if retryInterval <= 0 {
		retryInterval = 30 * time.Second
	}
	return &ResilientCounter{
		primary:       primary,
		fallback:      fallback,
		retryInterval: retryInterval,
		logger:        logger,
		observer:      observer,
	}
}

// Record records against the primary, falling back on failure.
func (c *ResilientCounter) Record(ctx context.Context, identifier string, now time.Time, window time.Duration) (int, error) {
	if c.degraded() {
		return c.fallback.Record(ctx, identifier, now, window)
	}
	count, err := c.primary.Record(ctx, identifier, now, window)
	if err != nil {
		c.failover("record", err)
		return c.fallback.Record(ctx, identifier, now, window)
	}
	return count, nil
}

// Peek peeks the primary, falling back on failure.
func (c *ResilientCounter) Peek(ctx context.Context, identifier string, now time.Time, window time.Duration) (int, error) {
	if c.degraded() {
		return c.fallback.Peek(ctx, identifier, now, window)
	}
	count, err := c.primary.Peek(ctx, identifier, now, window)
	if err != nil {
		c.failover("peek", err)
		return c.fallback.Peek(ctx, identifier, now, window)
	}
	return count, nil
}

// Reset clears the identifier in both backends. The primary error (if
// any) triggers failover handling; the fallback is always cleared so an
// administrative unlock takes effect regardless of store health.
func (c *ResilientCounter) Reset(ctx context.Context, identifier string) error {
	if !c.degraded() {
		if err := c.primary.Reset(ctx, identifier); err != nil {
			c.failover("reset", err)
		}
	}
	return c.fallback.Reset(ctx, identifier)
}

// Mode reports which backend is currently serving requests.
func (c *ResilientCounter) Mode() string {
	if c.degraded() {
		return ModeFallback
	}
	return ModePrimary
}

func (c *ResilientCounter) degraded() bool {
	until := c.degradedUntil.Load()
	return until != 0 && time.Now().UnixNano() < until
}

func (c *ResilientCounter) failover(op string, err error) {
	c.degradedUntil.Store(time.Now().Add(c.retryInterval).UnixNano())
	c.observer.StoreFailover(op)
	c.logger.Warn("counter store unavailable, serving from memory fallback",
		slog.String("op", op),
		slog.Duration("retry_in", c.retryInterval),
		slog.String("error", err.Error()),
	)
}
