package config

// DevProfile returns a starter configuration for local development:
// loopback listener, no Redis, relaxed auth, verbose text logging.
func DevProfile() string {
	return `# shield development configuration
listen:
  host: 127.0.0.1
  port: 8080
  global_rate_limit: 1000

redis:
  enabled: false

auth:
  mode: passthrough-strict
  allow_unauthenticated: true

trust:
  # Local traffic comes from private addresses; do not treat that as spoofing.
  internal: true

upstreams:
  - name: openai
    url: https://api.openai.com
    key_header: Authorization
  - name: unsplash
    url: https://api.unsplash.com
    key_header: Authorization

routes:
  - name: descriptions
    prefix: /api/descriptions
    upstream: openai
    profile: descriptionFree
    paid_profile: descriptionPaid
  - name: images
    prefix: /api/images
    upstream: unsplash
    profile: general

logging:
  level: debug
  format: text
  development: true
`
}

// ProdProfile returns a starter configuration for production: Redis
// counters, health-checked upstreams, sampled audit logging, hot reload.
func ProdProfile() string {
	return `# shield production configuration
listen:
  host: 0.0.0.0
  port: 8080
  global_rate_limit: 5000
  trusted_proxies:
    - 10.0.0.0/8

redis:
  enabled: true
  addr: 127.0.0.1:6379
  key_prefix: "shield:rl"

rate_limit:
  backoff_base: 1s
  backoff_max: 1h
  cooldown: 24h

auth:
  mode: passthrough-strict
  api_key_header: X-Api-Key

trust:
  fingerprint_ttl: 12h

upstreams:
  - name: openai
    url: https://api.openai.com
    key_header: Authorization
    # Replace with the output of: shield seal-key <api-key>
    sealed_key: ""
    health_check:
      enabled: true
      path: /v1/models
      interval: 30s

routes:
  - name: descriptions
    prefix: /api/descriptions
    upstream: openai
    profile: descriptionFree
    paid_profile: descriptionPaid

health:
  liveness_path: /healthz
  readiness_path: /readyz
  readiness_mode: any_healthy

logging:
  level: info
  format: json
  sampling:
    rate: 0.1
    error_rate: 1.0

shutdown:
  drain_timeout: 15s

reload:
  watch_file: true
  debounce: 1s
`
}
