// Package errors defines shield error types with educational messages.
// Every error includes a Hint for developer guidance and a DocsURL for reference.
package errors

import "fmt"

// ShieldError is the base error type for all shield errors.
// It includes educational Hint and DocsURL fields for developer guidance.
type ShieldError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	DocsURL string `json:"docs_url,omitempty"`
}

// Error implements the error interface.
func (e *ShieldError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("[%d] %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Predefined errors — each includes an educational hint and documentation URL.
var (
	ErrAuthRequired        = &ShieldError{Code: 401, Message: "Authentication required", Hint: "Set Authorization header: 'Bearer <token>'", DocsURL: "https://describe-it.dev/docs/auth"}
	ErrAuthInvalid         = &ShieldError{Code: 401, Message: "Invalid authentication token", Hint: "Check token expiry and issuer", DocsURL: "https://describe-it.dev/docs/auth"}
	ErrTrustDenied         = &ShieldError{Code: 403, Message: "Request not authorized", Hint: "The request did not meet the trust requirements for this route", DocsURL: "https://describe-it.dev/docs/trust"}
	ErrRateLimited         = &ShieldError{Code: 429, Message: "Rate limit exceeded", Hint: "Honor the Retry-After header before retrying", DocsURL: "https://describe-it.dev/docs/rate-limit"}
	ErrNoRoute             = &ShieldError{Code: 404, Message: "No matching route", Hint: "Check the request path against the configured routes", DocsURL: "https://describe-it.dev/docs/routing"}
	ErrUpstreamUnavailable = &ShieldError{Code: 503, Message: "Upstream service unavailable", Hint: "Check upstream health with GET /readyz", DocsURL: "https://describe-it.dev/docs/upstreams"}
	ErrGlobalLimitReached  = &ShieldError{Code: 503, Message: "Gateway capacity reached", Hint: "Gateway is at maximum throughput. Try again shortly", DocsURL: "https://describe-it.dev/docs/limits"}
	ErrInternal            = &ShieldError{Code: 500, Message: "Internal gateway error", Hint: "Check gateway logs with the request ID", DocsURL: "https://describe-it.dev/docs/troubleshooting"}
)

// WithDetail returns a copy of the error with extra detail appended to the
// message. The original predefined error is never mutated.
func (e *ShieldError) WithDetail(detail string) *ShieldError {
	clone := *e
	clone.Message = fmt.Sprintf("%s: %s", e.Message, detail)
	return &clone
}
