// Package config handles YAML configuration parsing, defaults, and validation
// for the shield security gateway.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/describe-it/shield/internal/ratelimit"
)

// Config is the root configuration for shield.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Trust     TrustConfig     `yaml:"trust"`
	Upstreams []UpstreamConfig `yaml:"upstreams"`
	Routes    []RouteConfig   `yaml:"routes"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
	Reload    ReloadConfig    `yaml:"reload"`
}

// ListenConfig defines the listener address and gateway-wide limits.
type ListenConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	GRPCPort        int      `yaml:"grpc_port"`
	GlobalRateLimit int      `yaml:"global_rate_limit"`
	TrustedProxies  []string `yaml:"trusted_proxies"`
}

// RedisConfig describes the external counter store.
type RedisConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Addr          string   `yaml:"addr"`
	Password      string   `yaml:"password"`
	DB            int      `yaml:"db"`
	KeyPrefix     string   `yaml:"key_prefix"`
	Timeout       Duration `yaml:"timeout"`
	RetryInterval Duration `yaml:"retry_interval"`
}

// RateLimitConfig holds the profile table and violation policy.
type RateLimitConfig struct {
	Profiles       map[string]ProfileConfig `yaml:"profiles"`
	BackoffBase    Duration                 `yaml:"backoff_base"`
	BackoffMax     Duration                 `yaml:"backoff_max"`
	Cooldown       Duration                 `yaml:"cooldown"`
	SweepInterval  Duration                 `yaml:"sweep_interval"`
}

// ProfileConfig overrides or defines a named rate-limit profile.
type ProfileConfig struct {
	Scope          string   `yaml:"scope"`
	Window         Duration `yaml:"window"`
	MaxRequests    int      `yaml:"max_requests"`
	BurstAllowance int      `yaml:"burst_allowance"`
	FailMode       string   `yaml:"fail_mode"`
}

// AuthConfig defines the authentication mode and scheme configuration.
type AuthConfig struct {
	Mode                 string   `yaml:"mode"` // "passthrough", "passthrough-strict", "terminate"
	AllowUnauthenticated bool     `yaml:"allow_unauthenticated"`
	Issuer               string   `yaml:"issuer"`
	Audience             string   `yaml:"audience"`
	JWKSURL              string   `yaml:"jwks_url"`
	AdminSubjects        []string `yaml:"admin_subjects"`
	APIKeyHeader         string   `yaml:"api_key_header"`
}

// TrustConfig controls the zero-trust validator. Deployments default to
// public-facing; setting internal disables the spoofed-source heuristic
// for deployments that legitimately see private client addresses.
type TrustConfig struct {
	Internal       bool     `yaml:"internal"`
	FingerprintTTL Duration `yaml:"fingerprint_ttl"`
}

// PublicFacing reports whether the deployment is treated as reachable
// from the public internet.
func (t TrustConfig) PublicFacing() bool { return !t.Internal }

// UpstreamConfig describes a backend API the gateway proxies to with a
// server-held API key injected.
type UpstreamConfig struct {
	Name        string            `yaml:"name"`
	URL         string            `yaml:"url"`
	KeyHeader   string            `yaml:"key_header"`
	SealedKey   string            `yaml:"sealed_key"` // AEAD-sealed, base64
	Timeout     Duration          `yaml:"timeout"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
}

// HealthCheckConfig controls per-upstream health probing.
type HealthCheckConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Path     string   `yaml:"path"`
	Interval Duration `yaml:"interval"`
}

// RouteConfig maps a path prefix to an upstream, a rate-limit profile,
// and the trust levels required to use it.
type RouteConfig struct {
	Name          string `yaml:"name"`
	Prefix        string `yaml:"prefix"`
	Upstream      string `yaml:"upstream"`
	Profile       string `yaml:"profile"`
	PaidProfile   string `yaml:"paid_profile"` // used instead of Profile for paid-tier users
	ReadMinTrust  string `yaml:"read_min_trust"`
	WriteMinTrust string `yaml:"write_min_trust"`
}

// HealthConfig defines health check endpoint paths and readiness behavior.
type HealthConfig struct {
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
	ReadinessMode string `yaml:"readiness_mode"` // "any_healthy", "all_healthy", "always"
}

// LoggingConfig controls log output and audit sampling.
type LoggingConfig struct {
	Level       string        `yaml:"level"`
	Format      string        `yaml:"format"` // "json" or "text"
	Development bool          `yaml:"development"`
	Sampling    SamplingConfig `yaml:"sampling"`
}

// SamplingConfig controls audit log sampling rates.
type SamplingConfig struct {
	Rate      float64 `yaml:"rate"`
	ErrorRate float64 `yaml:"error_rate"`
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// ReloadConfig controls configuration hot reload.
type ReloadConfig struct {
	WatchFile bool     `yaml:"watch_file"`
	Debounce  Duration `yaml:"debounce"`
}

// Duration wraps time.Duration for YAML parsing of values like "150ms".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Load reads, parses, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Profiles materializes the effective rate-limit profile table: the
// built-in profiles overlaid with any configured overrides or additions.
func (c *Config) Profiles() map[string]ratelimit.Profile {
	profiles := ratelimit.BuiltinProfiles()
	for name, pc := range c.RateLimit.Profiles {
		base, ok := profiles[name]
		if !ok {
			// New profiles start from safe defaults so partial YAML
			// definitions still validate.
			base = ratelimit.Profile{
				Name:     name,
				Scope:    ratelimit.ScopeIP,
				FailMode: ratelimit.FailOpen,
			}
		}
		if pc.Scope != "" {
			base.Scope = pc.Scope
		}
		if pc.Window.Duration > 0 {
			base.Window = pc.Window.Duration
		}
		if pc.MaxRequests > 0 {
			base.MaxRequests = pc.MaxRequests
		}
		if pc.BurstAllowance != 0 {
			base.BurstAllowance = pc.BurstAllowance
		}
		if pc.FailMode != "" {
			base.FailMode = pc.FailMode
		}
		profiles[name] = base
	}
	return profiles
}

// Backoff returns the configured lockout schedule.
func (c *Config) Backoff() ratelimit.Backoff {
	return ratelimit.Backoff{
		Base: c.RateLimit.BackoffBase.Duration,
		Max:  c.RateLimit.BackoffMax.Duration,
	}
}
