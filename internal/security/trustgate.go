package security

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/describe-it/shield/internal/ctxkeys"
	shielderrors "github.com/describe-it/shield/internal/errors"
	"github.com/describe-it/shield/internal/trust"
)

// TrustGate runs the zero-trust validator against each request and
// enforces the route's minimum trust level. It owns the fingerprint
// cache so the validator itself stays a pure function.
type TrustGate struct {
	validator    *trust.Validator
	settings     TrustSettings
	metrics      GateMetrics
	logger       *slog.Logger
	fingerprints *fingerprintCache
}

// NewTrustGate creates the trust-enforcement middleware.
func NewTrustGate(validator *trust.Validator, settings TrustSettings, metrics GateMetrics, logger *slog.Logger) *TrustGate {
	ttl := settings.FingerprintTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TrustGate{
		validator:    validator,
		settings:     settings,
		metrics:      metrics,
		logger:       logger,
		fingerprints: newFingerprintCache(ttl),
	}
}

// Process returns an http.Handler that enforces the route's trust policy.
func (g *TrustGate) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, _ := ctxkeys.RouteResultFrom(r.Context())
		auth, _ := ctxkeys.AuthInfoFrom(r.Context())
		entry, hasEntry := ctxkeys.AuditEntryFrom(r.Context())

		clientIP := ""
		identifier := ""
		if hasEntry {
			clientIP = entry.ClientIP
			identifier = entry.Identifier
		}
		if identifier == "" {
			identifier = "ip:" + clientIP
		}

		fingerprint := trust.Fingerprint(r)
		known := ""
		if auth.Authenticated() {
			known = g.fingerprints.lookup(auth.Subject)
		}

		assessment := g.validator.Validate(trust.Input{
			Identifier:       identifier,
			Authenticated:    auth.Authenticated(),
			ClientIP:         clientIP,
			UserAgent:        r.UserAgent(),
			Fingerprint:      fingerprint,
			KnownFingerprint: known,
			PublicFacing:     g.settings.PublicFacing,
		})

		// First observation wins: the recorded fingerprint stays pinned
		// for the TTL so a hijacked session cannot overwrite it.
		if auth.Authenticated() && known == "" {
			g.fingerprints.record(auth.Subject, fingerprint)
		}

		if hasEntry {
			entry.TrustLevel = assessment.Level
		}

		ctx := ctxkeys.WithTrust(r.Context(), ctxkeys.TrustAssessment{
			Identifier:  assessment.Identifier,
			Level:       assessment.Level,
			Reasons:     assessment.Reasons,
			Fingerprint: assessment.Fingerprint,
		})

		required := g.requiredLevel(route, r.Method)
		if !trust.LevelAtLeast(assessment.Level, required) {
			if g.metrics != nil {
				g.metrics.TrustDenial(assessment.Level)
			}
			if hasEntry {
				entry.Status = "denied"
				entry.BlockReason = "trust"
			}
			// Reasons go to the audit log, never to the client: they
			// would teach an attacker exactly which rule fired.
			g.logger.Warn("trust gate denied request",
				slog.String("identifier", identifier),
				slog.String("level", assessment.Level),
				slog.String("required", required),
				slog.String("reasons", strings.Join(assessment.Reasons, "; ")),
			)
			denial := shielderrors.ErrTrustDenied
			if g.settings.Development {
				denial = denial.WithDetail(strings.Join(assessment.Reasons, "; "))
			}
			shielderrors.WriteHTTPError(w, denial)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Name returns the middleware name.
func (g *TrustGate) Name() string {
	return "trust_gate"
}

// Stop terminates the fingerprint cache's cleanup goroutine.
func (g *TrustGate) Stop() {
	g.fingerprints.stop()
}

// requiredLevel maps the request method to the route's trust floor.
func (g *TrustGate) requiredLevel(route ctxkeys.RouteResult, method string) string {
	read := route.ReadMinTrust
	write := route.WriteMinTrust
	if read == "" {
		read = trust.LevelPartial
	}
	if write == "" {
		write = trust.LevelFull
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return read
	default:
		return write
	}
}

// fingerprintCache remembers the first fingerprint seen per subject for
// a TTL. Expired entries are swept by a background goroutine.
type fingerprintCache struct {
	mu      sync.RWMutex
	entries map[string]fingerprintEntry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

type fingerprintEntry struct {
	fingerprint string
	expiresAt   time.Time
}

func newFingerprintCache(ttl time.Duration) *fingerprintCache {
	c := &fingerprintCache{
		entries: make(map[string]fingerprintEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *fingerprintCache) lookup(subject string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[subject]
	if !ok || time.Now().After(e.expiresAt) {
		return ""
	}
	return e.fingerprint
}

func (c *fingerprintCache) record(subject, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[subject] = fingerprintEntry{
		fingerprint: fingerprint,
		expiresAt:   time.Now().Add(c.ttl),
	}
}

func (c *fingerprintCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for subject, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, subject)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *fingerprintCache) stop() {
	c.once.Do(func() { close(c.done) })
}
