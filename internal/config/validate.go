package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors. It collects ALL errors
// rather than stopping at the first one, returning them as a joined message.
func Validate(cfg *Config) error {
	var errs []string

	// ── Ports ──
	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535 (got %d)", cfg.Listen.Port))
	}
	if cfg.Listen.GRPCPort != 0 && (cfg.Listen.GRPCPort < 1 || cfg.Listen.GRPCPort > 65535) {
		errs = append(errs, fmt.Sprintf("listen.grpc_port must be 0 (disabled) or 1-65535 (got %d)", cfg.Listen.GRPCPort))
	}
	if cfg.Listen.GRPCPort != 0 && cfg.Listen.GRPCPort == cfg.Listen.Port {
		errs = append(errs, fmt.Sprintf("listen.grpc_port must differ from listen.port (both %d)", cfg.Listen.GRPCPort))
	}
	if cfg.Listen.GlobalRateLimit < 1 {
		errs = append(errs, fmt.Sprintf("listen.global_rate_limit must be positive (got %d)", cfg.Listen.GlobalRateLimit))
	}

	// ── Redis ──
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}
	if cfg.Redis.Timeout.Duration < 0 {
		errs = append(errs, "redis.timeout must be positive")
	}
	if cfg.Redis.RetryInterval.Duration < 0 {
		errs = append(errs, "redis.retry_interval must be positive")
	}

	// ── Rate limit profiles ──
	for name, p := range cfg.Profiles() {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("rate_limit.profiles[%s]: %v", name, err))
		}
	}
	if cfg.RateLimit.BackoffBase.Duration <= 0 {
		errs = append(errs, "rate_limit.backoff_base must be positive")
	}
	if cfg.RateLimit.BackoffMax.Duration < cfg.RateLimit.BackoffBase.Duration {
		errs = append(errs, "rate_limit.backoff_max must be >= rate_limit.backoff_base")
	}
	if cfg.RateLimit.Cooldown.Duration <= 0 {
		errs = append(errs, "rate_limit.cooldown must be positive")
	}

	// ── Auth mode ──
	if !isValidAuthMode(cfg.Auth.Mode) {
		errs = append(errs, fmt.Sprintf("auth.mode must be one of: passthrough, passthrough-strict, terminate (got %q)", cfg.Auth.Mode))
	}
	if cfg.Auth.Mode == "terminate" && cfg.Auth.JWKSURL == "" {
		errs = append(errs, "auth.jwks_url is required when auth.mode is terminate")
	}

	// ── Upstreams ──
	upstreams := make(map[string]bool, len(cfg.Upstreams))
	for i, u := range cfg.Upstreams {
		if u.Name == "" {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: name is required", i))
		}
		if upstreams[u.Name] {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: duplicate name %q", i, u.Name))
		}
		upstreams[u.Name] = true
		if u.URL == "" {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: url is required", i))
		} else if parsed, err := url.Parse(u.URL); err != nil || parsed.Host == "" {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: url must be a valid URL (got %q)", i, u.URL))
		}
		if u.Timeout.Duration < 0 {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: timeout must be positive", i))
		}
		if u.HealthCheck.Enabled && u.HealthCheck.Path == "" {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: health_check.path is required when health checks are enabled", i))
		}
	}

	// ── Routes ──
	profiles := cfg.Profiles()
	routeNames := make(map[string]bool, len(cfg.Routes))
	for i, r := range cfg.Routes {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("routes[%d]: name is required", i))
		}
		if routeNames[r.Name] {
			errs = append(errs, fmt.Sprintf("routes[%d]: duplicate name %q", i, r.Name))
		}
		routeNames[r.Name] = true
		if r.Prefix == "" || !strings.HasPrefix(r.Prefix, "/") {
			errs = append(errs, fmt.Sprintf("routes[%d]: prefix must start with / (got %q)", i, r.Prefix))
		}
		if r.Upstream == "" {
			errs = append(errs, fmt.Sprintf("routes[%d]: upstream is required", i))
		} else if !upstreams[r.Upstream] {
			errs = append(errs, fmt.Sprintf("routes[%d]: upstream %q is not defined", i, r.Upstream))
		}
		if _, ok := profiles[r.Profile]; !ok {
			errs = append(errs, fmt.Sprintf("routes[%d]: profile %q is not defined", i, r.Profile))
		}
		if r.PaidProfile != "" {
			if _, ok := profiles[r.PaidProfile]; !ok {
				errs = append(errs, fmt.Sprintf("routes[%d]: paid_profile %q is not defined", i, r.PaidProfile))
			}
		}
		if !isValidTrustLevel(r.ReadMinTrust) {
			errs = append(errs, fmt.Sprintf("routes[%d]: read_min_trust must be one of: full, partial, none (got %q)", i, r.ReadMinTrust))
		}
		if !isValidTrustLevel(r.WriteMinTrust) {
			errs = append(errs, fmt.Sprintf("routes[%d]: write_min_trust must be one of: full, partial, none (got %q)", i, r.WriteMinTrust))
		}
	}

	// ── Readiness mode ──
	if !isValidReadinessMode(cfg.Health.ReadinessMode) {
		errs = append(errs, fmt.Sprintf("health.readiness_mode must be one of: any_healthy, all_healthy, always (got %q)", cfg.Health.ReadinessMode))
	}

	// ── Logging ──
	if !isValidLogLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format must be json or text (got %q)", cfg.Logging.Format))
	}
	if cfg.Logging.Sampling.Rate < 0 || cfg.Logging.Sampling.Rate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.sampling.rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Sampling.Rate))
	}
	if cfg.Logging.Sampling.ErrorRate < 0 || cfg.Logging.Sampling.ErrorRate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.sampling.error_rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Sampling.ErrorRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidAuthMode(m string) bool {
	switch m {
	case "passthrough", "passthrough-strict", "terminate":
		return true
	}
	return false
}

func isValidTrustLevel(l string) bool {
	switch l {
	case "full", "partial", "none":
		return true
	}
	return false
}

func isValidReadinessMode(m string) bool {
	switch m {
	case "any_healthy", "all_healthy", "always":
		return true
	}
	return false
}

func isValidLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
