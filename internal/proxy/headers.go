package proxy

import (
	"net/http"
	"strings"
)

// Hop-by-hop headers per RFC 7230 §6.1. They describe the client-gateway
// connection and must not travel to the upstream.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// CopyHeadersFiltered copies end-to-end headers from src to dst, dropping
// the hop-by-hop set plus anything the Connection header names as
// connection-scoped.
func CopyHeadersFiltered(dst, src http.Header) {
	connScoped := connectionScoped(src)
	for key, values := range src {
		canon := http.CanonicalHeaderKey(key)
		if _, hop := hopByHopHeaders[canon]; hop {
			continue
		}
		if _, scoped := connScoped[canon]; scoped {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// connectionScoped collects the header names listed in Connection values.
func connectionScoped(h http.Header) map[string]struct{} {
	scoped := make(map[string]struct{})
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				scoped[http.CanonicalHeaderKey(token)] = struct{}{}
			}
		}
	}
	return scoped
}
