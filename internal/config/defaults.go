package config

import "time"

// ApplyDefaults fills zero-valued fields with the shipped defaults.
// It is called after YAML parsing and before validation.
func ApplyDefaults(cfg *Config) {
	// ── Listen ──
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 8080
	}
	if cfg.Listen.GlobalRateLimit == 0 {
		cfg.Listen.GlobalRateLimit = 5000
	}
	if cfg.Listen.TrustedProxies == nil {
		cfg.Listen.TrustedProxies = []string{}
	}

	// ── Redis ──
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "shield:rl"
	}
	if cfg.Redis.Timeout.Duration == 0 {
		cfg.Redis.Timeout.Duration = 150 * time.Millisecond
	}
	if cfg.Redis.RetryInterval.Duration == 0 {
		cfg.Redis.RetryInterval.Duration = 30 * time.Second
	}

	// ── Rate limit ──
	if cfg.RateLimit.BackoffBase.Duration == 0 {
		cfg.RateLimit.BackoffBase.Duration = time.Second
	}
	if cfg.RateLimit.BackoffMax.Duration == 0 {
		cfg.RateLimit.BackoffMax.Duration = time.Hour
	}
	if cfg.RateLimit.Cooldown.Duration == 0 {
		cfg.RateLimit.Cooldown.Duration = 24 * time.Hour
	}
	if cfg.RateLimit.SweepInterval.Duration == 0 {
		cfg.RateLimit.SweepInterval.Duration = 5 * time.Second
	}

	// ── Auth ──
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "passthrough-strict"
	}
	if cfg.Auth.APIKeyHeader == "" {
		cfg.Auth.APIKeyHeader = "X-Api-Key"
	}

	// ── Trust ──
	if cfg.Trust.FingerprintTTL.Duration == 0 {
		cfg.Trust.FingerprintTTL.Duration = 12 * time.Hour
	}

	// ── Upstreams ──
	for i := range cfg.Upstreams {
		if cfg.Upstreams[i].KeyHeader == "" {
			cfg.Upstreams[i].KeyHeader = "Authorization"
		}
		if cfg.Upstreams[i].Timeout.Duration == 0 {
			cfg.Upstreams[i].Timeout.Duration = 30 * time.Second
		}
		if cfg.Upstreams[i].HealthCheck.Interval.Duration == 0 {
			cfg.Upstreams[i].HealthCheck.Interval.Duration = 30 * time.Second
		}
	}

	// ── Routes ──
	for i := range cfg.Routes {
		if cfg.Routes[i].Profile == "" {
			cfg.Routes[i].Profile = "general"
		}
		if cfg.Routes[i].ReadMinTrust == "" {
			cfg.Routes[i].ReadMinTrust = "partial"
		}
		if cfg.Routes[i].WriteMinTrust == "" {
			cfg.Routes[i].WriteMinTrust = "full"
		}
	}

	// ── Health ──
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = "/healthz"
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = "/readyz"
	}
	if cfg.Health.ReadinessMode == "" {
		cfg.Health.ReadinessMode = "any_healthy"
	}

	// ── Logging ──
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Sampling.Rate == 0 {
		cfg.Logging.Sampling.Rate = 1.0
	}
	if cfg.Logging.Sampling.ErrorRate == 0 {
		cfg.Logging.Sampling.ErrorRate = 1.0
	}

	// ── Shutdown ──
	if cfg.Shutdown.DrainTimeout.Duration == 0 {
		cfg.Shutdown.DrainTimeout.Duration = 15 * time.Second
	}

	// ── Reload ──
	if cfg.Reload.Debounce.Duration == 0 {
		cfg.Reload.Debounce.Duration = time.Second
	}
}
