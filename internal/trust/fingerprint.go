// Package trust implements per-request zero-trust scoring: every request
// is assessed on authentication state, client fingerprint, IP class, and
// User-Agent heuristics, independent of where it came from.
package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Fingerprint derives a stable client identifier from request attributes
// that do not change between requests of the same client: User-Agent,
// Accept-Language, and the client-hint platform headers. Nothing
// per-request (cookies, request IDs, bodies) may feed the hash, or the
// fingerprint would never match across requests.
func Fingerprint(r *http.Request) string {
	parts := []string{
		r.Header.Get("User-Agent"),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Sec-Ch-Ua"),
		r.Header.Get("Sec-Ch-Ua-Platform"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	// 16 bytes is plenty for collision resistance at fingerprint scale.
	return hex.EncodeToString(sum[:16])
}
