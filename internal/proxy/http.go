// Package proxy forwards validated requests to upstream APIs with the
// server-held API key injected. The client's own credentials are
// stripped before forwarding: the upstream only ever sees the gateway's
// key, and the client never sees the key at all.
package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/describe-it/shield/internal/ctxkeys"
	shielderrors "github.com/describe-it/shield/internal/errors"
)

// Upstream is one configured backend with its opened API key.
type Upstream struct {
	Name      string
	BaseURL   string
	KeyHeader string // header to carry the key, "Authorization" gets a Bearer prefix
	APIKey    string // already opened from the sealed config value
	Timeout   time.Duration
}

// Gateway forwards requests to upstreams selected by the router.
// It uses http.Client directly instead of httputil.ReverseProxy
// to maintain full control over header management and key injection.
type Gateway struct {
	client    *http.Client
	upstreams map[string]Upstream
	logger    *slog.Logger
}

// NewGateway creates a Gateway over the given upstream set.
func NewGateway(transport http.RoundTripper, upstreams []Upstream, logger *slog.Logger) *Gateway {
	m := make(map[string]Upstream, len(upstreams))
	for _, u := range upstreams {
		m[u.Name] = u
	}
	return &Gateway{
		client:    &http.Client{Transport: transport},
		upstreams: m,
		logger:    logger,
	}
}

// ServeHTTP terminates the middleware pipeline: it resolves the route's
// upstream and forwards the request.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := ctxkeys.RouteResultFrom(r.Context())
	if !ok || route.UpstreamName == "" {
		shielderrors.WriteHTTPError(w, shielderrors.ErrNoRoute)
		return
	}
	upstream, ok := g.upstreams[route.UpstreamName]
	if !ok {
		g.logger.Error("route references unknown upstream",
			slog.String("route", route.Name),
			slog.String("upstream", route.UpstreamName),
		)
		shielderrors.WriteHTTPError(w, shielderrors.ErrInternal)
		return
	}
	if err := g.Forward(w, r, upstream); err != nil {
		g.logger.Error("upstream forward failed",
			slog.String("route", route.Name),
			slog.String("upstream", upstream.Name),
			slog.String("error", err.Error()),
		)
	}
}

// Forward proxies the request to the upstream with the gateway's key
// injected. The response is streamed back unmodified apart from
// hop-by-hop header filtering.
func (g *Gateway) Forward(w http.ResponseWriter, r *http.Request, upstream Upstream) error {
	backendURL := upstream.BaseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		backendURL += "?" + r.URL.RawQuery
	}

	ctx := r.Context()
	if upstream.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, upstream.Timeout)
		defer cancel()
	}

	backendReq, err := http.NewRequestWithContext(ctx, r.Method, backendURL, r.Body)
	if err != nil {
		shielderrors.WriteHTTPError(w, shielderrors.ErrUpstreamUnavailable)
		return fmt.Errorf("creating backend request: %w", err)
	}

	CopyHeadersFiltered(backendReq.Header, r.Header)
	scrubClientCredentials(backendReq.Header)
	injectKey(backendReq.Header, upstream)

	// X-Forwarded-For: append the client address recorded at ingress.
	if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok && entry.ClientIP != "" {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			backendReq.Header.Set("X-Forwarded-For", prior+", "+entry.ClientIP)
		} else {
			backendReq.Header.Set("X-Forwarded-For", entry.ClientIP)
		}
	}
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	backendReq.Header.Set("X-Forwarded-Proto", proto)

	resp, err := g.client.Do(backendReq)
	if err != nil {
		if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok {
			entry.Status = "error"
			entry.BlockReason = "upstream"
		}
		shielderrors.WriteHTTPError(w, shielderrors.ErrUpstreamUnavailable)
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	CopyHeadersFiltered(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)

	return nil
}

// scrubClientCredentials removes everything that could leak the caller's
// identity material or gateway internals to the upstream.
func scrubClientCredentials(h http.Header) {
	h.Del("Authorization")
	h.Del("X-Api-Key")
	h.Del("Cookie")
	for key := range h {
		if strings.HasPrefix(strings.ToLower(key), "x-shield-") {
			h.Del(key)
		}
	}
}

// injectKey sets the gateway's upstream credential.
func injectKey(h http.Header, upstream Upstream) {
	if upstream.APIKey == "" {
		return
	}
	if http.CanonicalHeaderKey(upstream.KeyHeader) == "Authorization" {
		h.Set("Authorization", "Bearer "+upstream.APIKey)
		return
	}
	h.Set(upstream.KeyHeader, upstream.APIKey)
}
