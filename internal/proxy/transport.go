package proxy

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPTransport creates an http.Transport tuned for a small set of
// long-lived upstream APIs: generous per-host connection reuse, HTTP/2
// where the upstream offers it, and bounded handshakes so a stalled
// upstream cannot pin goroutines.
func NewHTTPTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
