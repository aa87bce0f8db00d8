// Package router maps request paths to configured routes. Each route
// carries the upstream, rate-limit profile, and trust floors the rest of
// the pipeline enforces.
package router

import (
	"net/http"
	"sort"
	"strings"

	"github.com/describe-it/shield/internal/ctxkeys"
	shielderrors "github.com/describe-it/shield/internal/errors"
)

// Route is one resolved routing rule.
type Route struct {
	Name          string
	Prefix        string
	UpstreamName  string
	Profile       string
	PaidProfile   string
	ReadMinTrust  string
	WriteMinTrust string
}

// Router performs longest-prefix matching over the route table. The
// table is immutable after construction; reloads build a new Router.
type Router struct {
	routes []Route // sorted by prefix length, longest first
}

// New creates a Router from the route table.
func New(routes []Route) *Router {
	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Router{routes: sorted}
}

// Match returns the route for the path, or false if none matches.
// Prefixes match on segment boundaries: /api/desc does not capture
// /api/descriptions.
func (rt *Router) Match(path string) (Route, bool) {
	for _, r := range rt.routes {
		if matchPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return Route{}, false
}

// Process returns an http.Handler that resolves the route and stamps the
// result into the request context. Unmatched paths get a 404 before any
// gate runs.
func (rt *Router) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := rt.Match(r.URL.Path)
		if !ok {
			if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok {
				entry.Status = "denied"
				entry.BlockReason = "no_route"
			}
			shielderrors.WriteHTTPError(w, shielderrors.ErrNoRoute)
			return
		}

		result := ctxkeys.RouteResult{
			Name:          route.Name,
			UpstreamName:  route.UpstreamName,
			Profile:       route.Profile,
			PaidProfile:   route.PaidProfile,
			ReadMinTrust:  route.ReadMinTrust,
			WriteMinTrust: route.WriteMinTrust,
		}
		ctx := ctxkeys.WithRouteResult(r.Context(), result)
		if entry, ok := ctxkeys.AuditEntryFrom(ctx); ok {
			entry.Route = route.Name
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Name returns the middleware name.
func (rt *Router) Name() string {
	return "router"
}

// matchPrefix reports whether path falls under prefix on a segment boundary.
func matchPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/' || strings.HasSuffix(prefix, "/")
}
