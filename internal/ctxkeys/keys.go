// Package ctxkeys defines context keys for passing data through the request pipeline.
// All context keys are unexported to prevent collisions. Use the With*/From accessor pairs.
package ctxkeys

import (
	"context"
	"time"
)

// ── Key types (unexported, collision-proof) ──

type requestIDKey struct{}
type authInfoKey struct{}
type routeResultKey struct{}
type trustKey struct{}
type auditEntryKey struct{}

// ── Data types ──

// AuthInfo holds authentication information extracted by the auth middleware.
type AuthInfo struct {
	Mode            string // "passthrough", "passthrough-strict", "terminate"
	Subject         string // authenticated user identifier
	Scheme          string // "bearer", "apikey"
	Tier            string // "free", "paid" — from the token's tier claim
	IsAdmin         bool   // from the token's role claim, or an admin API token
	APIKeyHash      string // stable hash of the presented API key, if any
	SubjectVerified bool   // true only in terminate mode
}

// Authenticated reports whether the request carries a usable identity.
func (a AuthInfo) Authenticated() bool {
	return a.Subject != ""
}

// TrustAssessment is the per-request trust decision computed by the
// zero-trust validator. It is a value: computed fresh each request,
// attached to the context, and dropped when the request ends.
type TrustAssessment struct {
	Identifier  string
	Level       string   // "full", "partial", "none"
	Reasons     []string // always at least one human-readable justification
	Fingerprint string
}

// RouteResult holds the routing decision for a request.
type RouteResult struct {
	Name          string
	UpstreamName  string
	Profile       string // rate-limit profile applied to this route
	PaidProfile   string // profile used instead when the caller is paid-tier
	ReadMinTrust  string // minimum trust level for read methods
	WriteMinTrust string // minimum trust level for mutating methods
}

// AuditEntry holds audit log data accumulated during request processing.
type AuditEntry struct {
	RequestID   string
	Route       string
	Method      string
	Path        string
	ClientIP    string
	Identifier  string
	Profile     string
	AuthSubject string
	TrustLevel  string
	Status      string // "ok", "throttled", "denied", "error"
	BlockReason string
	StartTime   time.Time
}

// ── Getter/Setter (With*/From pattern) ──

// WithRequestID stores the request-scoped identifier in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom retrieves the request identifier from the context.
func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// WithAuthInfo stores AuthInfo in the context.
func WithAuthInfo(ctx context.Context, info AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey{}, info)
}

// AuthInfoFrom retrieves AuthInfo from the context.
func AuthInfoFrom(ctx context.Context) (AuthInfo, bool) {
	info, ok := ctx.Value(authInfoKey{}).(AuthInfo)
	return info, ok
}

// WithRouteResult stores RouteResult in the context.
func WithRouteResult(ctx context.Context, result RouteResult) context.Context {
	return context.WithValue(ctx, routeResultKey{}, result)
}

// RouteResultFrom retrieves RouteResult from the context.
func RouteResultFrom(ctx context.Context) (RouteResult, bool) {
	result, ok := ctx.Value(routeResultKey{}).(RouteResult)
	return result, ok
}

// WithTrust stores the TrustAssessment in the context.
func WithTrust(ctx context.Context, t TrustAssessment) context.Context {
	return context.WithValue(ctx, trustKey{}, t)
}

// TrustFrom retrieves the TrustAssessment from the context.
func TrustFrom(ctx context.Context) (TrustAssessment, bool) {
	t, ok := ctx.Value(trustKey{}).(TrustAssessment)
	return t, ok
}

// WithAuditEntry stores an AuditEntry pointer in the context.
func WithAuditEntry(ctx context.Context, entry *AuditEntry) context.Context {
	return context.WithValue(ctx, auditEntryKey{}, entry)
}

// AuditEntryFrom retrieves the AuditEntry pointer from the context.
func AuditEntryFrom(ctx context.Context) (*AuditEntry, bool) {
	entry, ok := ctx.Value(auditEntryKey{}).(*AuditEntry)
	return entry, ok
}
