package ratelimit

import (
	"fmt"
	"time"
)

// Identifier scopes determine what a profile counts against.
const (
	ScopeIP     = "ip"
	ScopeUser   = "user"
	ScopeAPIKey = "apiKey"
)

// Failure modes control the decision when both counter backends fail.
const (
	FailOpen   = "open"   // allow the request, log the gap
	FailClosed = "closed" // deny the request
)

// Profile is a named, immutable rate-limit configuration. Profiles are
// validated once at startup; a malformed profile aborts the process
// rather than surfacing at request time.
type Profile struct {
	Name           string
	Scope          string // "ip", "user", "apiKey"
	Window         time.Duration
	MaxRequests    int
	BurstAllowance int
	FailMode       string // "open" or "closed"
}

// Validate checks the profile invariants.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("profile %q: max_requests must be positive (got %d)", p.Name, p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("profile %q: window must be positive (got %s)", p.Name, p.Window)
	}
	if p.BurstAllowance < 0 {
		return fmt.Errorf("profile %q: burst_allowance must not be negative (got %d)", p.Name, p.BurstAllowance)
	}
	switch p.Scope {
	case ScopeIP, ScopeUser, ScopeAPIKey:
	default:
		return fmt.Errorf("profile %q: scope must be one of: ip, user, apiKey (got %q)", p.Name, p.Scope)
	}
	switch p.FailMode {
	case FailOpen, FailClosed:
	default:
		return fmt.Errorf("profile %q: fail_mode must be one of: open, closed (got %q)", p.Name, p.FailMode)
	}
	return nil
}

// BuiltinProfiles returns the named profiles shipped with the gateway.
// Auth-sensitive profiles fail closed on total store failure; the rest
// fail open, since blocking all traffic on an infrastructure hiccup is
// worse than a temporary enforcement gap for non-sensitive endpoints.
func BuiltinProfiles() map[string]Profile {
	profiles := []Profile{
		{Name: "auth", Scope: ScopeIP, Window: 15 * time.Minute, MaxRequests: 5, BurstAllowance: 0, FailMode: FailClosed},
		{Name: "descriptionFree", Scope: ScopeUser, Window: time.Minute, MaxRequests: 10, BurstAllowance: 2, FailMode: FailOpen},
		{Name: "descriptionPaid", Scope: ScopeUser, Window: time.Minute, MaxRequests: 100, BurstAllowance: 20, FailMode: FailOpen},
		{Name: "general", Scope: ScopeIP, Window: time.Minute, MaxRequests: 100, BurstAllowance: 10, FailMode: FailOpen},
		{Name: "strict", Scope: ScopeIP, Window: time.Minute, MaxRequests: 10, BurstAllowance: 0, FailMode: FailClosed},
		{Name: "burst", Scope: ScopeIP, Window: 10 * time.Second, MaxRequests: 20, BurstAllowance: 0, FailMode: FailOpen},
	}

	m := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		m[p.Name] = p
	}
	return m
}
