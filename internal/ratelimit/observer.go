package ratelimit

// Observer receives rate-limiter events for metrics and monitoring.
// The audit metrics collector implements it; tests use NopObserver.
type Observer interface {
	// RateLimitHit is called when a request is throttled.
	RateLimitHit(profile, scope string)
	// Lockout is called when a violation escalates into a lockout.
	Lockout(profile string)
	// AdminBypass is called once per admin-bypassed request.
	AdminBypass()
	// StoreFailover is called when the primary counter store fails over.
	StoreFailover(op string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) RateLimitHit(string, string) {}
func (NopObserver) Lockout(string)              {}
func (NopObserver) AdminBypass()                {}
func (NopObserver) StoreFailover(string)        {}
