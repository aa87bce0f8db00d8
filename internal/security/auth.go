package security

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/describe-it/shield/internal/ctxkeys"
	shielderrors "github.com/describe-it/shield/internal/errors"
)

// AuthMiddleware resolves the caller's identity based on the configured mode.
//
// passthrough:        no checks, empty identity.
// passthrough-strict: credentials must be present; claims are extracted
//                     best-effort but NOT verified.
// terminate:          full JWT validation against the configured JWKS.
//
// An API key in the configured header is accepted in every mode as an
// alternative credential; the key itself never enters the context, only
// a stable hash of it.
type AuthMiddleware struct {
	mode                 string
	allowUnauthenticated bool
	apiKeyHeader         string
	adminSubjects        map[string]bool
	logger               *slog.Logger
	// JWT validation fields (for terminate mode)
	issuer   string
	audience string
	jwksURL  string
}

// NewAuthMiddleware creates an AuthMiddleware from configuration.
func NewAuthMiddleware(cfg AuthSettings, logger *slog.Logger) *AuthMiddleware {
	admins := make(map[string]bool, len(cfg.AdminSubjects))
	for _, s := range cfg.AdminSubjects {
		admins[s] = true
	}
	return &AuthMiddleware{
		mode:                 cfg.Mode,
		allowUnauthenticated: cfg.AllowUnauthenticated,
		apiKeyHeader:         cfg.APIKeyHeader,
		adminSubjects:        admins,
		logger:               logger,
		issuer:               cfg.Issuer,
		audience:             cfg.Audience,
		jwksURL:              cfg.JWKSURL,
	}
}

// Process returns an http.Handler that performs authentication checks.
func (a *AuthMiddleware) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var authInfo ctxkeys.AuthInfo
		var authErr *shielderrors.ShieldError

		switch a.mode {
		case "passthrough":
			authInfo = ctxkeys.AuthInfo{Mode: "passthrough"}
		case "terminate":
			authInfo, authErr = a.processTerminate(r)
		default:
			// passthrough-strict, also the fallback for unknown modes
			authInfo, authErr = a.processPassthroughStrict(r)
		}

		if authErr != nil {
			if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok {
				entry.Status = "denied"
				entry.BlockReason = "auth"
			}
			shielderrors.WriteHTTPError(w, authErr)
			return
		}

		if a.adminSubjects[authInfo.Subject] {
			authInfo.IsAdmin = true
		}

		if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok {
			entry.AuthSubject = authInfo.Subject
		}

		ctx := ctxkeys.WithAuthInfo(r.Context(), authInfo)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Name returns the middleware name.
func (a *AuthMiddleware) Name() string {
	return "auth"
}

// processPassthroughStrict requires a credential but does not verify it.
// Claims pulled out of the token are advisory; the subject is prefixed
// "unverified:" so nothing downstream mistakes it for a verified identity.
func (a *AuthMiddleware) processPassthroughStrict(r *http.Request) (ctxkeys.AuthInfo, *shielderrors.ShieldError) {
	authHeader := r.Header.Get("Authorization")
	apiKey := a.presentedAPIKey(r)

	if authHeader == "" && apiKey == "" {
		if !a.allowUnauthenticated {
			return ctxkeys.AuthInfo{}, shielderrors.ErrAuthRequired
		}
		return ctxkeys.AuthInfo{Mode: "passthrough-strict"}, nil
	}

	if authHeader == "" {
		return a.apiKeyIdentity("passthrough-strict", apiKey), nil
	}

	scheme, token := parseAuthHeader(authHeader)
	subject := extractClaim(token, "sub")
	if subject == "" {
		// Opaque token — use a truncated form as identifier
		subject = truncateToken(token)
	}
	if subject != "" {
		subject = "unverified:" + subject
	}

	// The role claim is deliberately ignored here: admin must never be
	// grantable from an unverified token. Only the operator-configured
	// admin_subjects list can mark a strict-mode caller as admin.
	return ctxkeys.AuthInfo{
		Mode:            "passthrough-strict",
		Subject:         subject,
		Scheme:          scheme,
		Tier:            normalizeTier(extractClaim(token, "tier")),
		APIKeyHash:      hashAPIKey(apiKey),
		SubjectVerified: false,
	}, nil
}

// processTerminate performs full JWT validation.
func (a *AuthMiddleware) processTerminate(r *http.Request) (ctxkeys.AuthInfo, *shielderrors.ShieldError) {
	authHeader := r.Header.Get("Authorization")
	apiKey := a.presentedAPIKey(r)

	if authHeader == "" && apiKey == "" {
		if !a.allowUnauthenticated {
			return ctxkeys.AuthInfo{}, shielderrors.ErrAuthRequired
		}
		return ctxkeys.AuthInfo{Mode: "terminate"}, nil
	}

	if authHeader == "" {
		return a.apiKeyIdentity("terminate", apiKey), nil
	}

	scheme, tokenStr := parseAuthHeader(authHeader)
	if !strings.EqualFold(scheme, "bearer") {
		return ctxkeys.AuthInfo{}, shielderrors.ErrAuthInvalid
	}

	parseOpts := []jwt.ParseOption{jwt.WithValidate(true)}
	if a.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(a.audience))
	}

	if a.jwksURL != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		keySet, err := jwk.Fetch(ctx, a.jwksURL)
		if err != nil {
			a.logger.Error("JWKS fetch failed", "url", a.jwksURL, "error", err)
			return ctxkeys.AuthInfo{}, shielderrors.ErrAuthInvalid
		}
		parseOpts = append(parseOpts, jwt.WithKeySet(keySet))
	} else {
		// No JWKS URL — skip signature verification, validate claims only
		parseOpts = append(parseOpts, jwt.WithVerify(false))
	}

	token, err := jwt.Parse([]byte(tokenStr), parseOpts...)
	if err != nil {
		return ctxkeys.AuthInfo{}, shielderrors.ErrAuthInvalid
	}

	info := ctxkeys.AuthInfo{
		Mode:            "terminate",
		Subject:         token.Subject(),
		Scheme:          scheme,
		APIKeyHash:      hashAPIKey(apiKey),
		SubjectVerified: true,
	}
	if v, ok := token.Get("tier"); ok {
		if s, ok := v.(string); ok {
			info.Tier = normalizeTier(s)
		}
	}
	if v, ok := token.Get("role"); ok {
		if s, ok := v.(string); ok && s == "admin" {
			info.IsAdmin = true
		}
	}
	return info, nil
}

// presentedAPIKey returns the API key header value, if configured and present.
func (a *AuthMiddleware) presentedAPIKey(r *http.Request) string {
	if a.apiKeyHeader == "" {
		return ""
	}
	return r.Header.Get(a.apiKeyHeader)
}

// apiKeyIdentity builds the identity for a request authenticated only by
// API key. The subject is derived from the key hash so two requests with
// the same key map to the same identifier without ever exposing the key.
func (a *AuthMiddleware) apiKeyIdentity(mode, apiKey string) ctxkeys.AuthInfo {
	hash := hashAPIKey(apiKey)
	return ctxkeys.AuthInfo{
		Mode:            mode,
		Subject:         "key:" + hash,
		Scheme:          "apikey",
		APIKeyHash:      hash,
		SubjectVerified: false,
	}
}

// hashAPIKey returns a stable, non-reversible identifier for an API key.
func hashAPIKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// normalizeTier collapses unknown tier claims to "free".
func normalizeTier(tier string) string {
	if tier == "paid" {
		return "paid"
	}
	return "free"
}

// parseAuthHeader splits "Scheme Token" into its parts.
func parseAuthHeader(header string) (scheme, token string) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 {
		return strings.ToLower(parts[0]), parts[1]
	}
	return "", header
}

// truncateToken shortens an opaque token for use as an identifier.
func truncateToken(token string) string {
	if len(token) > 16 {
		return token[:16] + "..."
	}
	return token
}

// extractClaim does a best-effort extraction of a string claim from an
// unverified JWT payload. Non-JWT tokens yield "".
func extractClaim(token, claim string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	return extractJSONField(string(payload), claim)
}

// extractJSONField does a minimal extraction of a string field from JSON.
// This avoids a full decode for a hot best-effort path.
func extractJSONField(jsonStr, field string) string {
	key := `"` + field + `"`
	idx := strings.Index(jsonStr, key)
	if idx < 0 {
		return ""
	}
	rest := jsonStr[idx+len(key):]
	colonIdx := strings.Index(rest, ":")
	if colonIdx < 0 {
		return ""
	}
	rest = strings.TrimSpace(rest[colonIdx+1:])
	if len(rest) == 0 || rest[0] != '"' {
		return ""
	}
	rest = rest[1:]
	endIdx := strings.Index(rest, `"`)
	if endIdx < 0 {
		return ""
	}
	return rest[:endIdx]
}
