package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingCounter wraps a Counter and counts Record calls.
type countingCounter struct {
	Counter
	records atomic.Int64
}

func (c *countingCounter) Record(ctx context.Context, id string, now time.Time, window time.Duration) (int, error) {
	c.records.Add(1)
	return c.Counter.Record(ctx, id, now, window)
}

// countingLogHandler counts emitted log records by message.
type countingLogHandler struct {
	mu       sync.Mutex
	messages map[string]int
}

func newCountingLogHandler() *countingLogHandler {
	return &countingLogHandler{messages: make(map[string]int)}
}

func (h *countingLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[r.Message]++
	return nil
}

func (h *countingLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingLogHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingLogHandler) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages[msg]
}

func newTestLimiter(clock Clock) *Limiter {
	return NewLimiter(
		NewMemoryCounter(0),
		NewViolationStore(Backoff{Base: time.Second, Max: time.Hour}, 24*time.Hour),
		clock, nil, nil,
	)
}

func TestLimiterAllowsUpToMax(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	profile := Profile{Name: "test", Scope: ScopeIP, Window: time.Minute, MaxRequests: 5, FailMode: FailOpen}

	for i := 0; i < 5; i++ {
		d := l.Check(context.Background(), "ip:1.1.1.1", profile, false)
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if want := 5 - (i + 1); d.Remaining != want {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, want, d.Remaining)
		}
	}

	d := l.Check(context.Background(), "ip:1.1.1.1", profile, false)
	if d.Allowed {
		t.Error("request 6: expected denied")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("denied decision must carry a positive RetryAfter, got %s", d.RetryAfter)
	}
	if d.Remaining != 0 {
		t.Errorf("denied decision: expected remaining 0, got %d", d.Remaining)
	}
}

func TestLimiterSlidingWindowEndToEnd(t *testing.T) {
	// Profile auth: 5 requests per 15 minutes.
	clock := newFakeClock()
	l := newTestLimiter(clock)
	profile := BuiltinProfiles()["auth"]
	const id = "ip:1.2.3.4"

	// Five requests at t=0,1,2,3,4s — all allowed, remaining 4,3,2,1,0.
	for i := 0; i < 5; i++ {
		d := l.Check(context.Background(), id, profile, false)
		if !d.Allowed {
			t.Fatalf("request at t=%ds: expected allowed", i)
		}
		if want := 4 - i; d.Remaining != want {
			t.Errorf("request at t=%ds: expected remaining %d, got %d", i, want, d.Remaining)
		}
		clock.Advance(time.Second)
	}

	// Sixth request at t=5s — denied with a positive retry hint.
	d := l.Check(context.Background(), id, profile, false)
	if d.Allowed {
		t.Fatal("request at t=5s: expected denied")
	}
	if d.RetryAfterSeconds() <= 0 {
		t.Errorf("expected positive RetryAfterSeconds, got %d", d.RetryAfterSeconds())
	}

	// At t=901s the first requests have slid out of the window.
	clock.Advance(896 * time.Second)
	d = l.Check(context.Background(), id, profile, false)
	if !d.Allowed {
		t.Errorf("request at t=901s: expected allowed, remaining=%d retryAfter=%s", d.Remaining, d.RetryAfter)
	}
}

func TestLimiterConcurrentChecksExactBudget(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	profile := BuiltinProfiles()["burst"] // 20 per 10s, no allowance

	const n = 25 // maxRequests + 5
	var allowed, denied atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := l.Check(context.Background(), "ip:9.9.9.9", profile, false)
			if d.Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 20 {
		t.Errorf("expected exactly 20 allowed, got %d", allowed.Load())
	}
	if denied.Load() != 5 {
		t.Errorf("expected exactly 5 denied, got %d", denied.Load())
	}
}

func TestLimiterTwoSimultaneousNewIdentifierRequestsBothCount(t *testing.T) {
	clock := newFakeClock()
	counter := &countingCounter{Counter: NewMemoryCounter(0)}
	l := NewLimiter(counter, NewViolationStore(DefaultBackoff(), 24*time.Hour), clock, nil, nil)
	profile := BuiltinProfiles()["burst"]

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := l.Check(context.Background(), "ip:8.8.8.8", profile, false); !d.Allowed {
				t.Error("simultaneous request on fresh identifier must be allowed")
			}
		}()
	}
	wg.Wait()

	status, err := l.Status(context.Background(), "ip:8.8.8.8", profile)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Remaining != profile.MaxRequests-2 {
		t.Errorf("expected both requests counted (remaining %d), got %d", profile.MaxRequests-2, status.Remaining)
	}
}

func TestLimiterBurstAllowance(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	profile := Profile{Name: "test", Scope: ScopeIP, Window: time.Minute, MaxRequests: 3, BurstAllowance: 2, FailMode: FailOpen}

	// maxRequests + burstAllowance requests pass; remaining clamps at zero.
	for i := 0; i < 5; i++ {
		d := l.Check(context.Background(), "id", profile, false)
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed within burst allowance", i+1)
		}
		if d.Remaining < 0 {
			t.Errorf("request %d: remaining must not be negative, got %d", i+1, d.Remaining)
		}
	}
	if d := l.Check(context.Background(), "id", profile, false); d.Allowed {
		t.Error("request past burst allowance: expected denied")
	}
}

func TestLimiterLockoutShortCircuitsCounter(t *testing.T) {
	clock := newFakeClock()
	counter := &countingCounter{Counter: NewMemoryCounter(0)}
	l := NewLimiter(counter, NewViolationStore(Backoff{Base: time.Minute, Max: time.Hour}, 24*time.Hour), clock, nil, nil)
	profile := Profile{Name: "test", Scope: ScopeIP, Window: time.Minute, MaxRequests: 1, FailMode: FailOpen}

	l.Check(context.Background(), "id", profile, false) // allowed
	l.Check(context.Background(), "id", profile, false) // denied, 1m lockout
	recordsBefore := counter.records.Load()

	// While locked out, the counter store must not be touched.
	for i := 0; i < 3; i++ {
		d := l.Check(context.Background(), "id", profile, false)
		if d.Allowed {
			t.Fatal("locked-out identifier must be denied")
		}
	}
	if counter.records.Load() != recordsBefore {
		t.Errorf("counter touched during lockout: %d extra records", counter.records.Load()-recordsBefore)
	}
}

func TestLimiterLockoutEscalates(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	profile := Profile{Name: "test", Scope: ScopeIP, Window: time.Second, MaxRequests: 1, FailMode: FailOpen}

	l.Check(context.Background(), "id", profile, false)
	first := l.Check(context.Background(), "id", profile, false)
	if first.Allowed {
		t.Fatal("expected first violation to be denied")
	}

	// Wait out the lockout and the window, violate again: lockout doubles.
	clock.Advance(2 * time.Second)
	l.Check(context.Background(), "id", profile, false)
	second := l.Check(context.Background(), "id", profile, false)
	if second.Allowed {
		t.Fatal("expected second violation to be denied")
	}
	if second.RetryAfter <= first.RetryAfter {
		t.Errorf("expected escalating lockout: first %s, second %s", first.RetryAfter, second.RetryAfter)
	}
}

func TestLimiterAdminBypass(t *testing.T) {
	clock := newFakeClock()
	handler := newCountingLogHandler()
	obs := &recordingObserver{}
	l := NewLimiter(
		NewMemoryCounter(0),
		NewViolationStore(Backoff{Base: time.Hour, Max: time.Hour}, 24*time.Hour),
		clock, slog.New(handler), obs,
	)
	profile := Profile{Name: "test", Scope: ScopeIP, Window: time.Minute, MaxRequests: 1, FailMode: FailOpen}

	// Build up a violation history for the identifier.
	l.Check(context.Background(), "id", profile, false)
	l.Check(context.Background(), "id", profile, false)

	// Admin requests are always allowed, regardless of history, and do
	// not consume the counter.
	for i := 0; i < 3; i++ {
		d := l.Check(context.Background(), "id", profile, true)
		if !d.Allowed {
			t.Fatalf("admin request %d: expected allowed", i+1)
		}
		if d.Remaining != profile.MaxRequests {
			t.Errorf("admin request %d: expected untouched quota, remaining %d", i+1, d.Remaining)
		}
	}

	if got := handler.count("rate limit bypassed"); got != 3 {
		t.Errorf("expected bypass logged exactly once per request (3), got %d", got)
	}
	if obs.bypasses.Load() != 3 {
		t.Errorf("expected 3 bypass events, got %d", obs.bypasses.Load())
	}
}

func TestLimiterFailClosedOnTotalStoreFailure(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(&failingCounter{}, NewViolationStore(DefaultBackoff(), 24*time.Hour), clock, nil, nil)

	closed := Profile{Name: "auth", Scope: ScopeIP, Window: time.Minute, MaxRequests: 5, FailMode: FailClosed}
	d := l.Check(context.Background(), "id", closed, false)
	if d.Allowed {
		t.Error("fail-closed profile must deny on total store failure")
	}
	if d.RetryAfterSeconds() < 1 {
		t.Errorf("denied decision must carry Retry-After, got %d", d.RetryAfterSeconds())
	}

	open := Profile{Name: "general", Scope: ScopeIP, Window: time.Minute, MaxRequests: 5, FailMode: FailOpen}
	if d := l.Check(context.Background(), "id", open, false); !d.Allowed {
		t.Error("fail-open profile must allow on total store failure")
	}
}

func TestLimiterStoreFailureRecoveredByFallback(t *testing.T) {
	// With the resilient counter in front, a dead primary must be
	// invisible to the limiter: counts keep working via memory.
	clock := newFakeClock()
	resilient := NewResilientCounter(&failingCounter{}, NewMemoryCounter(0), time.Minute, nil, nil)
	l := NewLimiter(resilient, NewViolationStore(DefaultBackoff(), 24*time.Hour), clock, nil, nil)
	profile := Profile{Name: "auth", Scope: ScopeIP, Window: time.Minute, MaxRequests: 3, FailMode: FailClosed}

	for i := 0; i < 3; i++ {
		d := l.Check(context.Background(), "id", profile, false)
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed via fallback", i+1)
		}
	}
	if d := l.Check(context.Background(), "id", profile, false); d.Allowed {
		t.Error("expected correct deny from fallback counts")
	}
}

func TestLimiterUnlock(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	profile := Profile{Name: "test", Scope: ScopeIP, Window: time.Minute, MaxRequests: 1, FailMode: FailOpen}

	l.Check(context.Background(), "id", profile, false)
	if d := l.Check(context.Background(), "id", profile, false); d.Allowed {
		t.Fatal("expected deny before unlock")
	}

	if err := l.Unlock(context.Background(), "id", profile); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if d := l.Check(context.Background(), "id", profile, false); !d.Allowed {
		t.Error("expected allow after unlock")
	}
}

func TestDecisionRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		retryAfter time.Duration
		want       int
	}{
		{0, 0},
		{-time.Second, 0},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Hour, 3600},
	}
	for _, c := range cases {
		d := Decision{RetryAfter: c.retryAfter}
		if got := d.RetryAfterSeconds(); got != c.want {
			t.Errorf("RetryAfterSeconds(%s): expected %d, got %d", c.retryAfter, c.want, got)
		}
	}
}
