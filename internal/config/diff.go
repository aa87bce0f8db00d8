package config

import (
	"fmt"
	"reflect"

	"github.com/describe-it/shield/internal/ratelimit"
)

// Change describes a single configuration field that differs between two configs.
type Change struct {
	Field      string      // dot-separated field path (e.g., "rate_limit.profiles[auth].max_requests")
	OldValue   interface{} // previous value
	NewValue   interface{} // new value
	Reloadable bool        // whether this change can be applied without restart
}

// Diff compares two Config values and returns a list of changes.
// Each change is annotated with whether it is reloadable at runtime.
func Diff(old, new *Config) []Change {
	var changes []Change

	// ── Non-reloadable: listen ──
	diffField(&changes, "listen.host", old.Listen.Host, new.Listen.Host, false)
	diffField(&changes, "listen.port", old.Listen.Port, new.Listen.Port, false)
	diffField(&changes, "listen.grpc_port", old.Listen.GRPCPort, new.Listen.GRPCPort, false)
	diffField(&changes, "listen.global_rate_limit", old.Listen.GlobalRateLimit, new.Listen.GlobalRateLimit, false)
	diffStringSlice(&changes, "listen.trusted_proxies", old.Listen.TrustedProxies, new.Listen.TrustedProxies, false)

	// ── Non-reloadable: redis ──
	diffField(&changes, "redis.enabled", old.Redis.Enabled, new.Redis.Enabled, false)
	diffField(&changes, "redis.addr", old.Redis.Addr, new.Redis.Addr, false)
	diffField(&changes, "redis.db", old.Redis.DB, new.Redis.DB, false)
	diffField(&changes, "redis.key_prefix", old.Redis.KeyPrefix, new.Redis.KeyPrefix, false)

	// ── Reloadable: rate limit profiles and violation policy ──
	diffProfiles(&changes, old.Profiles(), new.Profiles())
	diffField(&changes, "rate_limit.backoff_base", old.RateLimit.BackoffBase.Duration, new.RateLimit.BackoffBase.Duration, true)
	diffField(&changes, "rate_limit.backoff_max", old.RateLimit.BackoffMax.Duration, new.RateLimit.BackoffMax.Duration, true)
	diffField(&changes, "rate_limit.cooldown", old.RateLimit.Cooldown.Duration, new.RateLimit.Cooldown.Duration, true)

	// ── Reloadable: auth policy ──
	diffField(&changes, "auth.mode", old.Auth.Mode, new.Auth.Mode, true)
	diffField(&changes, "auth.allow_unauthenticated", old.Auth.AllowUnauthenticated, new.Auth.AllowUnauthenticated, true)
	diffStringSlice(&changes, "auth.admin_subjects", old.Auth.AdminSubjects, new.Auth.AdminSubjects, true)

	// ── Reloadable: trust ──
	diffField(&changes, "trust.internal", old.Trust.Internal, new.Trust.Internal, true)
	diffField(&changes, "trust.fingerprint_ttl", old.Trust.FingerprintTTL.Duration, new.Trust.FingerprintTTL.Duration, true)

	// ── Non-reloadable: upstreams and routes ──
	if !reflect.DeepEqual(old.Upstreams, new.Upstreams) {
		changes = append(changes, Change{
			Field:      "upstreams",
			OldValue:   fmt.Sprintf("%d entries", len(old.Upstreams)),
			NewValue:   fmt.Sprintf("%d entries", len(new.Upstreams)),
			Reloadable: false,
		})
	}
	if !reflect.DeepEqual(old.Routes, new.Routes) {
		changes = append(changes, Change{
			Field:      "routes",
			OldValue:   fmt.Sprintf("%d entries", len(old.Routes)),
			NewValue:   fmt.Sprintf("%d entries", len(new.Routes)),
			Reloadable: false,
		})
	}

	// ── Reloadable: logging ──
	diffField(&changes, "logging.level", old.Logging.Level, new.Logging.Level, true)
	diffField(&changes, "logging.format", old.Logging.Format, new.Logging.Format, true)
	diffField(&changes, "logging.sampling.rate", old.Logging.Sampling.Rate, new.Logging.Sampling.Rate, true)
	diffField(&changes, "logging.sampling.error_rate", old.Logging.Sampling.ErrorRate, new.Logging.Sampling.ErrorRate, true)

	// ── Non-reloadable: health, shutdown ──
	diffField(&changes, "health.readiness_mode", old.Health.ReadinessMode, new.Health.ReadinessMode, false)
	diffField(&changes, "shutdown.drain_timeout", old.Shutdown.DrainTimeout.Duration, new.Shutdown.DrainTimeout.Duration, false)

	return changes
}

// diffField appends a Change if old != new using reflect.DeepEqual for comparison.
func diffField(changes *[]Change, field string, oldVal, newVal interface{}, reloadable bool) {
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}

// diffStringSlice compares two string slices and appends a Change if they differ.
func diffStringSlice(changes *[]Change, field string, oldVal, newVal []string, reloadable bool) {
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}

// diffProfiles compares effective profile tables and produces per-profile
// changes. Profile additions, removals, and limit changes are all reloadable.
func diffProfiles(changes *[]Change, oldProfiles, newProfiles map[string]ratelimit.Profile) {
	for name, oldP := range oldProfiles {
		newP, exists := newProfiles[name]
		if !exists {
			*changes = append(*changes, Change{
				Field:      fmt.Sprintf("rate_limit.profiles[%s]", name),
				OldValue:   oldP,
				NewValue:   nil,
				Reloadable: true,
			})
			continue
		}
		if !reflect.DeepEqual(oldP, newP) {
			*changes = append(*changes, Change{
				Field:      fmt.Sprintf("rate_limit.profiles[%s]", name),
				OldValue:   oldP,
				NewValue:   newP,
				Reloadable: true,
			})
		}
	}
	for name, newP := range newProfiles {
		if _, exists := oldProfiles[name]; !exists {
			*changes = append(*changes, Change{
				Field:      fmt.Sprintf("rate_limit.profiles[%s]", name),
				OldValue:   nil,
				NewValue:   newP,
				Reloadable: true,
			})
		}
	}
}
