package trust

import (
	"net/http/httptest"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/a", nil)
	r1.Header.Set("User-Agent", "Mozilla/5.0")
	r1.Header.Set("Accept-Language", "es-ES,es;q=0.9")

	// Different path, method, and per-request headers must not matter.
	r2 := httptest.NewRequest("POST", "/b", nil)
	r2.Header.Set("User-Agent", "Mozilla/5.0")
	r2.Header.Set("Accept-Language", "es-ES,es;q=0.9")
	r2.Header.Set("X-Request-ID", "something-unique")

	if Fingerprint(r1) != Fingerprint(r2) {
		t.Error("fingerprint must be stable across requests of the same client")
	}
}

func TestFingerprintDistinguishesClients(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/", nil)
	r1.Header.Set("User-Agent", "Mozilla/5.0")

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.Header.Set("User-Agent", "Mozilla/5.0 (different)")

	if Fingerprint(r1) == Fingerprint(r2) {
		t.Error("different user agents must produce different fingerprints")
	}
}

func TestFingerprintLength(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := len(Fingerprint(r)); got != 32 {
		t.Errorf("expected 32 hex chars, got %d", got)
	}
}

func TestIsPublicIP(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"203.0.113.10", true},
		{"8.8.8.8", true},
		{"2001:4860:4860::8888", true},
		{"10.0.0.1", false},
		{"172.16.5.5", false},
		{"192.168.1.1", false},
		{"127.0.0.1", false},
		{"169.254.1.1", false},
		{"100.64.0.1", false}, // carrier-grade NAT
		{"0.0.0.0", false},
		{"::1", false},
		{"fe80::1", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsPublicIP(c.addr); got != c.want {
			t.Errorf("IsPublicIP(%q): expected %v, got %v", c.addr, c.want, got)
		}
	}
}

func TestBenignUserAgent(t *testing.T) {
	cases := []struct {
		ua   string
		want bool
	}{
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36", true},
		{"describe-it-mobile/2.1.0", true},
		{"", false},
		{"   ", false},
		{"curl/8.4.0", false},
		{"Wget/1.21", false},
		{"Googlebot/2.1 (+http://www.google.com/bot.html)", false},
		{"python-requests/2.31.0", false},
		{"Go-http-client/1.1", false},
		{"HeadlessChrome/120.0", false},
	}
	for _, c := range cases {
		if got := BenignUserAgent(c.ua); got != c.want {
			t.Errorf("BenignUserAgent(%q): expected %v, got %v", c.ua, c.want, got)
		}
	}
}
