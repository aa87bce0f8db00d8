// Package security implements the request-validation middleware pipeline.
//
// Decoration: RequestID, SecurityHeaders, AuditRecorder
// Pre-Auth:   GlobalRateLimiter
// Post-Auth:  AuthMiddleware, RateLimitGate, TrustGate
//
// The router middleware is injected so routing decisions are available to
// the gates without a package cycle.
package security

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/describe-it/shield/internal/ratelimit"
	"github.com/describe-it/shield/internal/trust"
)

// Middleware is a security processing step in the pipeline.
type Middleware interface {
	Process(next http.Handler) http.Handler
	Name() string
}

// AuthSettings holds authentication configuration for the pipeline.
type AuthSettings struct {
	Mode                 string // "passthrough", "passthrough-strict", "terminate"
	AllowUnauthenticated bool
	APIKeyHeader         string
	AdminSubjects        []string
	// JWT fields for terminate mode
	Issuer   string
	Audience string
	JWKSURL  string
}

// TrustSettings holds zero-trust validation configuration.
type TrustSettings struct {
	PublicFacing   bool
	FingerprintTTL time.Duration
	Development    bool // include denial reasons in responses
}

// PipelineDeps carries the constructed components the pipeline wires together.
type PipelineDeps struct {
	Auth            AuthSettings
	Trust           TrustSettings
	GlobalRateLimit int
	TrustedProxies  []string

	Router    Middleware // resolves the route before the gates run
	Limiter   *ratelimit.Limiter
	Profiles  map[string]ratelimit.Profile
	Validator *trust.Validator

	Metrics        GateMetrics    // may be nil
	AuditSink      AuditSink      // may be nil
	RequestMetrics RequestMetrics // may be nil
	Logger         *slog.Logger
}

// GateMetrics is the slice of metrics the gates report to.
type GateMetrics interface {
	TrustDenial(level string)
}

// BuildPipeline constructs the ordered middleware chain.
func BuildPipeline(deps PipelineDeps) []Middleware {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var mws []Middleware

	// Decoration layer: every response carries a request ID and the
	// security headers, even early rejections.
	mws = append(mws, NewRequestID(NewClientIPResolver(deps.TrustedProxies)))
	mws = append(mws, NewAuditRecorder(deps.AuditSink, deps.RequestMetrics))
	mws = append(mws, NewSecurityHeaders())

	// Pre-auth layer.
	if deps.GlobalRateLimit > 0 {
		mws = append(mws, NewGlobalRateLimiter(deps.GlobalRateLimit))
	}
	if deps.Router != nil {
		mws = append(mws, deps.Router)
	}

	// Post-auth layer. Per-profile limits run after auth because user and
	// apiKey scopes need the resolved identity; trust runs last so its
	// fingerprint bookkeeping is not polluted by throttled traffic.
	mws = append(mws, NewAuthMiddleware(deps.Auth, logger))
	mws = append(mws, NewRateLimitGate(deps.Limiter, deps.Profiles, logger))
	mws = append(mws, NewTrustGate(deps.Validator, deps.Trust, deps.Metrics, logger))

	return mws
}

// ApplyPipeline wraps a handler with all middleware in order.
// Apply in reverse order so first middleware executes first.
func ApplyPipeline(handler http.Handler, middlewares []Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Process(handler)
	}
	return handler
}
