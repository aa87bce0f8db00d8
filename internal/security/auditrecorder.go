package security

import (
	"context"
	"net/http"
	"time"

	"github.com/describe-it/shield/internal/ctxkeys"
)

// AuditSink receives the completed audit entry via the request context.
type AuditSink interface {
	LogRequest(ctx context.Context)
}

// RequestMetrics records per-request counters and latency.
type RequestMetrics interface {
	RecordRequest(route, status string, durationSeconds float64)
}

// AuditRecorder finalizes the audit entry once the request completes and
// hands it to the sink. It sits right after RequestID in the chain so it
// observes the outcome of every later middleware.
type AuditRecorder struct {
	sink    AuditSink
	metrics RequestMetrics
}

// NewAuditRecorder creates the audit-recording middleware. Either
// argument may be nil.
func NewAuditRecorder(sink AuditSink, metrics RequestMetrics) *AuditRecorder {
	return &AuditRecorder{sink: sink, metrics: metrics}
}

// Process returns an http.Handler that records the request outcome.
func (a *AuditRecorder) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry, ok := ctxkeys.AuditEntryFrom(r.Context())
		if !ok {
			return
		}
		if entry.Status == "" {
			entry.Status = statusLabel(rec.status)
		}

		duration := time.Since(entry.StartTime).Seconds()
		if a.metrics != nil {
			route := entry.Route
			if route == "" {
				route = "unmatched"
			}
			a.metrics.RecordRequest(route, entry.Status, duration)
		}
		if a.sink != nil {
			a.sink.LogRequest(r.Context())
		}
	})
}

// Name returns the middleware name.
func (a *AuditRecorder) Name() string {
	return "audit_recorder"
}

// statusLabel maps an HTTP status to the audit status vocabulary.
func statusLabel(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "throttled"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "denied"
	case status >= 500:
		return "error"
	default:
		return "ok"
	}
}

// statusRecorder captures the response status for audit labeling.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
