package audit

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks gateway metrics and serves them in Prometheus text
// format. It uses a custom prometheus.Registry for isolation and
// testability. Metrics satisfies ratelimit.Observer so the limiter can
// report throttles, lockouts, bypasses, and store failovers directly.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimitHits   *prometheus.CounterVec
	lockoutsTotal   *prometheus.CounterVec
	adminBypasses   prometheus.Counter
	storeFailovers  *prometheus.CounterVec
	trustDenials    *prometheus.CounterVec
	upstreamHealth  *prometheus.GaugeVec
	buildInfo       *prometheus.GaugeVec
}

// NewMetrics creates a Metrics collector with a custom Prometheus
// registry. All metric families are pre-registered with HELP and TYPE
// metadata.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_requests_total",
			Help: "Total number of requests processed by the shield gateway.",
		}, []string{"route", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shield_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_rate_limit_hits_total",
			Help: "Total number of rate limit denials.",
		}, []string{"profile", "scope"}),

		lockoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_lockouts_total",
			Help: "Total number of exponential-backoff lockouts applied.",
		}, []string{"profile"}),

		adminBypasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shield_admin_bypass_total",
			Help: "Total number of admin rate-limit bypasses.",
		}),

		storeFailovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_store_failovers_total",
			Help: "Total number of counter-store failovers to the memory fallback.",
		}, []string{"op"}),

		trustDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_trust_denials_total",
			Help: "Total number of zero-trust denials.",
		}, []string{"level"}),

		upstreamHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shield_upstream_health",
			Help: "Health status of upstream services (1=healthy, 0=unhealthy).",
		}, []string{"upstream"}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shield_build_info",
			Help: "Build information for the running gateway.",
		}, []string{"version"}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.rateLimitHits,
		m.lockoutsTotal,
		m.adminBypasses,
		m.storeFailovers,
		m.trustDenials,
		m.upstreamHealth,
		m.buildInfo,
	)

	return m
}

// Handler returns the Prometheus exposition handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetBuildInfo records the gateway version.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// RecordRequest counts one processed request and its duration.
func (m *Metrics) RecordRequest(route, status string, durationSeconds float64) {
	m.requestsTotal.WithLabelValues(route, status).Inc()
	m.requestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// TrustDenial counts one zero-trust denial at the given level.
func (m *Metrics) TrustDenial(level string) {
	m.trustDenials.WithLabelValues(level).Inc()
}

// SetUpstreamHealth records an upstream's health state.
func (m *Metrics) SetUpstreamHealth(upstream string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.upstreamHealth.WithLabelValues(upstream).Set(v)
}

// ── ratelimit.Observer implementation ──

// RateLimitHit counts one throttled request.
func (m *Metrics) RateLimitHit(profile, scope string) {
	m.rateLimitHits.WithLabelValues(profile, scope).Inc()
}

// Lockout counts one backoff lockout.
func (m *Metrics) Lockout(profile string) {
	m.lockoutsTotal.WithLabelValues(profile).Inc()
}

// AdminBypass counts one admin bypass.
func (m *Metrics) AdminBypass() {
	m.adminBypasses.Inc()
}

// StoreFailover counts one failover to the memory fallback.
func (m *Metrics) StoreFailover(op string) {
	m.storeFailovers.WithLabelValues(op).Inc()
}
