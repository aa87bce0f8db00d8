package security

import (
	"log/slog"
	"net/http"

	"github.com/describe-it/shield/internal/ctxkeys"
	shielderrors "github.com/describe-it/shield/internal/errors"
	"github.com/describe-it/shield/internal/ratelimit"
)

// RateLimitGate applies the route's rate-limit profile to each request.
// The quota headers are set on every response, allowed or denied, so
// clients can pace themselves before hitting the limit.
type RateLimitGate struct {
	limiter  *ratelimit.Limiter
	profiles map[string]ratelimit.Profile
	logger   *slog.Logger
}

// NewRateLimitGate creates the per-profile rate-limit middleware.
func NewRateLimitGate(limiter *ratelimit.Limiter, profiles map[string]ratelimit.Profile, logger *slog.Logger) *RateLimitGate {
	return &RateLimitGate{
		limiter:  limiter,
		profiles: profiles,
		logger:   logger,
	}
}

// Process returns an http.Handler that enforces the route's profile.
func (g *RateLimitGate) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, _ := ctxkeys.RouteResultFrom(r.Context())
		auth, _ := ctxkeys.AuthInfoFrom(r.Context())

		profile, ok := g.profile(route, auth)
		if !ok {
			// A route referencing an unknown profile is a config bug
			// that validation should have caught. Failing the request
			// is safer than waving it through unmetered.
			g.logger.Error("route references unknown profile",
				slog.String("route", route.Name),
				slog.String("profile", route.Profile),
			)
			shielderrors.WriteHTTPError(w, shielderrors.ErrInternal)
			return
		}

		identifier := g.identifier(profile.Scope, r, auth)

		entry, hasEntry := ctxkeys.AuditEntryFrom(r.Context())
		if hasEntry {
			entry.Identifier = identifier
			entry.Profile = profile.Name
		}

		decision := g.limiter.Check(r.Context(), identifier, profile, auth.IsAdmin)
		setRateLimitHeaders(w, decision)

		if !decision.Allowed {
			if hasEntry {
				entry.Status = "throttled"
				entry.BlockReason = "rate_limit"
			}
			shielderrors.WriteHTTPError(w, shielderrors.ErrRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name.
func (g *RateLimitGate) Name() string {
	return "rate_limit_gate"
}

// profile resolves the effective profile for the request. Paid-tier
// callers get the route's paid profile when one is configured.
func (g *RateLimitGate) profile(route ctxkeys.RouteResult, auth ctxkeys.AuthInfo) (ratelimit.Profile, bool) {
	name := route.Profile
	if name == "" {
		name = "general"
	}
	if auth.Tier == "paid" && route.PaidProfile != "" {
		name = route.PaidProfile
	}
	p, ok := g.profiles[name]
	return p, ok
}

// identifier builds the counting key for the profile's scope. Scopes
// that need an identity fall back to the client IP when the request is
// anonymous, so unauthenticated traffic is still metered.
func (g *RateLimitGate) identifier(scope string, r *http.Request, auth ctxkeys.AuthInfo) string {
	entry, _ := ctxkeys.AuditEntryFrom(r.Context())
	clientIP := ""
	if entry != nil {
		clientIP = entry.ClientIP
	}

	switch scope {
	case ratelimit.ScopeUser:
		if auth.Authenticated() {
			return "user:" + auth.Subject
		}
		return "ip:" + clientIP
	case ratelimit.ScopeAPIKey:
		if auth.APIKeyHash != "" {
			return "key:" + auth.APIKeyHash
		}
		return "ip:" + clientIP
	default:
		return "ip:" + clientIP
	}
}
