package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIPResolver extracts the real client IP based on the trusted-proxy
// configuration. CIDRs are parsed once at construction, not per request.
type ClientIPResolver struct {
	trustedNets []*net.IPNet
}

// NewClientIPResolver parses the configured trusted proxies, accepting
// both CIDR notation and plain addresses.
func NewClientIPResolver(trustedProxies []string) *ClientIPResolver {
	nets := make([]*net.IPNet, 0, len(trustedProxies))
	for _, c := range trustedProxies {
		if _, ipNet, err := net.ParseCIDR(c); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Plain IP — convert to /32 or /128
		if ip := net.ParseIP(c); ip != nil {
			mask := net.CIDRMask(128, 128)
			if ip.To4() != nil {
				mask = net.CIDRMask(32, 32)
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: mask})
		}
	}
	return &ClientIPResolver{trustedNets: nets}
}

// ClientIP returns the request's real client address.
// With no trusted proxies configured, RemoteAddr wins unconditionally:
// X-Forwarded-For is attacker-controlled and must never be believed
// unless the directly-connected peer is known to set it honestly.
// With trusted proxies, the rightmost non-trusted entry in
// X-Forwarded-For is the client.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if len(c.trustedNets) == 0 {
		return remoteIP
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}

	parts := strings.Split(xff, ",")
	ips := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ips = append(ips, trimmed)
		}
	}

	for i := len(ips) - 1; i >= 0; i-- {
		ip := net.ParseIP(ips[i])
		if ip == nil {
			continue
		}
		if !c.trusted(ip) {
			return ips[i]
		}
	}

	// Every XFF entry is a trusted proxy — fall back to RemoteAddr.
	return remoteIP
}

func (c *ClientIPResolver) trusted(ip net.IP) bool {
	for _, n := range c.trustedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// stripPort removes the port from addr (handles both IPv4 and IPv6).
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
