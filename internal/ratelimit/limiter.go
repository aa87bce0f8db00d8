package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Decision is the outcome of a rate-limit check. Throttling is an
// expected, common outcome, so it is modeled as a return value rather
// than an error; errors are reserved for configuration mistakes and
// unrecoverable infrastructure failures.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// RetryAfterSeconds returns the Retry-After header value: whole seconds,
// rounded up, at least 1 for a denied decision.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter is the single decision point combining the sliding-window
// counter with violation tracking and exponential lockouts.
type Limiter struct {
	counter    Counter
	violations *ViolationStore
	clock      Clock
	logger     *slog.Logger
	observer   Observer
}

// NewLimiter creates a Limiter. clock, logger, and observer may be nil,
// selecting the system clock, default logger, and a no-op observer.
func NewLimiter(counter Counter, violations *ViolationStore, clock Clock, logger *slog.Logger, observer Observer) *Limiter {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Limiter{
		counter:    counter,
		violations: violations,
		clock:      clock,
		logger:     logger,
		observer:   observer,
	}
}

// Check decides whether one request from the identifier is allowed under
// the profile.
//
// Locked-out identifiers are rejected before the counter is touched, so
// abuse traffic cannot hammer the counter store. Admin traffic bypasses
// policy entirely; every bypass is logged with identifier and reason
// because this path is a classic source of privilege-escalation bugs.
func (l *Limiter) Check(ctx context.Context, identifier string, profile Profile, isAdmin bool) Decision {
	now := l.clock.Now()

	if isAdmin {
		l.observer.AdminBypass()
		l.logger.Info("rate limit bypassed",
			slog.String("identifier", identifier),
			slog.String("profile", profile.Name),
			slog.String("reason", "admin"),
		)
		return Decision{
			Allowed:   true,
			Limit:     profile.MaxRequests,
			Remaining: profile.MaxRequests,
			ResetAt:   now.Add(profile.Window),
		}
	}

	if state := l.violations.Get(identifier, now); state.LockedOut(now) {
		l.observer.RateLimitHit(profile.Name, profile.Scope)
		return Decision{
			Allowed:    false,
			Limit:      profile.MaxRequests,
			Remaining:  0,
			ResetAt:    state.LockoutUntil,
			RetryAfter: state.LockoutUntil.Sub(now),
		}
	}

	count, err := l.counter.Record(ctx, profile.Name+":"+identifier, now, profile.Window)
	if err != nil {
		return l.decideOnStoreFailure(identifier, profile, now, err)
	}

	if count <= profile.MaxRequests+profile.BurstAllowance {
		remaining := profile.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:   true,
			Limit:     profile.MaxRequests,
			Remaining: remaining,
			ResetAt:   now.Add(profile.Window),
		}
	}

	state := l.violations.Escalate(identifier, now)
	l.observer.RateLimitHit(profile.Name, profile.Scope)
	l.observer.Lockout(profile.Name)
	l.logger.Warn("rate limit exceeded, lockout applied",
		slog.String("identifier", identifier),
		slog.String("profile", profile.Name),
		slog.Int("violations", state.ViolationCount),
		slog.Time("lockout_until", state.LockoutUntil),
	)
	return Decision{
		Allowed:    false,
		Limit:      profile.MaxRequests,
		Remaining:  0,
		ResetAt:    state.LockoutUntil,
		RetryAfter: state.LockoutUntil.Sub(now),
	}
}

// Status reports the identifier's current usage without consuming quota.
func (l *Limiter) Status(ctx context.Context, identifier string, profile Profile) (Decision, error) {
	now := l.clock.Now()
	count, err := l.counter.Peek(ctx, profile.Name+":"+identifier, now, profile.Window)
	if err != nil {
		return Decision{}, err
	}
	remaining := profile.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count < profile.MaxRequests+profile.BurstAllowance,
		Limit:     profile.MaxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(profile.Window),
	}, nil
}

// Unlock clears the identifier's counter entries and violation lockout.
// Used by operators to manually release a locked-out client.
func (l *Limiter) Unlock(ctx context.Context, identifier string, profile Profile) error {
	l.violations.Unlock(identifier)
	l.logger.Info("rate limit manually unlocked",
		slog.String("identifier", identifier),
		slog.String("profile", profile.Name),
	)
	return l.counter.Reset(ctx, profile.Name+":"+identifier)
}

// decideOnStoreFailure applies the profile's failure mode when both the
// primary store and the memory fallback have failed. This should be
// exceptionally rare; the resilient counter absorbs ordinary outages.
func (l *Limiter) decideOnStoreFailure(identifier string, profile Profile, now time.Time, err error) Decision {
	l.logger.Error("all counter backends failed",
		slog.String("identifier", identifier),
		slog.String("profile", profile.Name),
		slog.String("fail_mode", profile.FailMode),
		slog.String("error", err.Error()),
	)
	if profile.FailMode == FailClosed {
		return Decision{
			Allowed:    false,
			Limit:      profile.MaxRequests,
			Remaining:  0,
			ResetAt:    now.Add(profile.Window),
			RetryAfter: time.Second,
		}
	}
	return Decision{
		Allowed:   true,
		Limit:     profile.MaxRequests,
		Remaining: profile.MaxRequests - 1,
		ResetAt:   now.Add(profile.Window),
	}
}
