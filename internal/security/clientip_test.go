package security

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP_NoTrustedProxies(t *testing.T) {
	resolver := NewClientIPResolver(nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.9:4312"
	r.Header.Set("X-Forwarded-For", "203.0.113.50")

	// XFF must be ignored: it is attacker-controlled without a trusted proxy.
	if got := resolver.ClientIP(r); got != "198.51.100.9" {
		t.Errorf("ClientIP = %q, want RemoteAddr host", got)
	}
}

func TestClientIP_TrustedProxyChain(t *testing.T) {
	resolver := NewClientIPResolver([]string{"10.0.0.0/8"})

	tests := []struct {
		name string
		xff  string
		want string
	}{
		{
			name: "single client behind proxy",
			xff:  "203.0.113.50",
			want: "203.0.113.50",
		},
		{
			name: "client then internal hop",
			xff:  "203.0.113.50, 10.0.0.3",
			want: "203.0.113.50",
		},
		{
			name: "spoofed prefix ignored",
			xff:  "1.2.3.4, 203.0.113.50, 10.0.0.3",
			want: "203.0.113.50",
		},
		{
			name: "all entries trusted falls back to remote addr",
			xff:  "10.0.0.1, 10.0.0.2",
			want: "10.9.9.9",
		},
		{
			name: "no header",
			xff:  "",
			want: "10.9.9.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "10.9.9.9:1234"
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := resolver.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP_PlainIPTrustedProxy(t *testing.T) {
	resolver := NewClientIPResolver([]string{"10.0.0.3"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.3:555"
	r.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.3")

	if got := resolver.ClientIP(r); got != "203.0.113.50" {
		t.Errorf("ClientIP = %q, want client behind plain-IP proxy", got)
	}
}

func TestClientIP_IPv6RemoteAddr(t *testing.T) {
	resolver := NewClientIPResolver(nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[2001:db8::1]:443"

	if got := resolver.ClientIP(r); got != "2001:db8::1" {
		t.Errorf("ClientIP = %q, want bare IPv6 host", got)
	}
}
