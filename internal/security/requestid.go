package security

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/describe-it/shield/internal/ctxkeys"
)

// RequestID tags every request with a unique identifier and seeds the
// audit entry that downstream middleware fills in. A client-supplied
// X-Request-ID is honored for cross-service correlation; otherwise a
// fresh UUID is minted.
type RequestID struct {
	resolver *ClientIPResolver
}

// NewRequestID creates the request-ID middleware.
func NewRequestID(resolver *ClientIPResolver) *RequestID {
	return &RequestID{resolver: resolver}
}

// Process returns an http.Handler that attaches the request ID and audit entry.
func (m *RequestID) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		entry := &ctxkeys.AuditEntry{
			RequestID: id,
			Method:    r.Method,
			Path:      r.URL.Path,
			ClientIP:  m.resolver.ClientIP(r),
			StartTime: timeNow(),
		}

		ctx := ctxkeys.WithRequestID(r.Context(), id)
		ctx = ctxkeys.WithAuditEntry(ctx, entry)

		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Name returns the middleware name.
func (m *RequestID) Name() string {
	return "request_id"
}
