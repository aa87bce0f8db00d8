// Package server assembles the shield gateway: configuration, rate
// limiting, zero-trust validation, the proxy, and the listeners.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/describe-it/shield/internal/audit"
	"github.com/describe-it/shield/internal/config"
	shieldgrpc "github.com/describe-it/shield/internal/grpc"
	"github.com/describe-it/shield/internal/health"
	"github.com/describe-it/shield/internal/keyvault"
	"github.com/describe-it/shield/internal/proxy"
	"github.com/describe-it/shield/internal/ratelimit"
	"github.com/describe-it/shield/internal/router"
	"github.com/describe-it/shield/internal/security"
	"github.com/describe-it/shield/internal/trust"
	"github.com/describe-it/shield/internal/upstream"
)

// Server is the shield gateway process: both listeners plus every
// long-lived component they share.
type Server struct {
	cfg        *config.Config
	configPath string
	version    string

	logger   *slog.Logger
	logLevel *slog.LevelVar

	metrics     *audit.Metrics
	memCounter  *ratelimit.MemoryCounter
	resilient   *ratelimit.ResilientCounter // nil when Redis is disabled
	redisClient *redis.Client               // nil when Redis is disabled
	violations  *ratelimit.ViolationStore
	limiter     *ratelimit.Limiter
	validator   *trust.Validator
	router      *router.Router
	gateway     *proxy.Gateway
	monitor     *upstream.Monitor
	health      *health.Handler
	reloader    *config.ConfigReloader
	grpcServer  *shieldgrpc.Server

	// secured holds the pipeline-wrapped gateway handler. Reloads swap
	// it atomically while requests are in flight.
	secured atomic.Value // http.Handler

	pipelineMu    sync.Mutex
	trustGate     *security.TrustGate
	grpcTrustGate *security.TrustGate

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener // if non-nil, Start uses this instead of creating one
}

// New creates a Server from configuration. configPath enables SIGHUP
// and file-watch reload; pass "" to disable both.
func New(cfg *config.Config, configPath, version string) (*Server, error) {
	logger, levelVar := buildLogger(cfg.Logging)

	metrics := audit.NewMetrics()
	metrics.SetBuildInfo(version)

	// The in-memory counter always exists: it is either the sole backend
	// or the fallback behind Redis.
	memCounter := ratelimit.NewMemoryCounter(cfg.RateLimit.SweepInterval.Duration)
	var counter ratelimit.Counter = memCounter
	var resilient *ratelimit.ResilientCounter
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		primary := ratelimit.NewRedisCounter(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.Timeout.Duration)
		resilient = ratelimit.NewResilientCounter(primary, memCounter, cfg.Redis.RetryInterval.Duration, logger, metrics)
		counter = resilient
	}

	violations := ratelimit.NewViolationStore(cfg.Backoff(), cfg.RateLimit.Cooldown.Duration)
	limiter := ratelimit.NewLimiter(counter, violations, ratelimit.SystemClock{}, logger, metrics)

	upstreams, err := buildUpstreams(cfg.Upstreams)
	if err != nil {
		return nil, err
	}
	gateway := proxy.NewGateway(proxy.NewHTTPTransport(), upstreams, logger)

	routes := make([]router.Route, len(cfg.Routes))
	for i, rc := range cfg.Routes {
		routes[i] = router.Route{
			Name:          rc.Name,
			Prefix:        rc.Prefix,
			UpstreamName:  rc.Upstream,
			Profile:       rc.Profile,
			PaidProfile:   rc.PaidProfile,
			ReadMinTrust:  rc.ReadMinTrust,
			WriteMinTrust: rc.WriteMinTrust,
		}
	}
	rtr := router.New(routes)

	monitor := upstream.NewMonitor(buildProbeTargets(cfg.Upstreams), logger, metrics)

	var counterMode health.CounterModeFunc
	if resilient != nil {
		counterMode = resilient.Mode
	}
	healthHandler := health.NewHandler(monitor, counterMode, version, cfg.Health.ReadinessMode)

	srv := &Server{
		cfg:         cfg,
		configPath:  configPath,
		version:     version,
		logger:      logger,
		logLevel:    levelVar,
		metrics:     metrics,
		memCounter:  memCounter,
		resilient:   resilient,
		redisClient: redisClient,
		violations:  violations,
		limiter:     limiter,
		validator:   trust.NewValidator(),
		router:      rtr,
		gateway:     gateway,
		monitor:     monitor,
		health:      healthHandler,
	}

	srv.rebuildPipeline(cfg)

	if cfg.Listen.GRPCPort > 0 {
		grpcMws, grpcTG := srv.buildMiddlewares(cfg)
		srv.grpcTrustGate = grpcTG
		grpcAddr := fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.GRPCPort)
		srv.grpcServer = shieldgrpc.NewServer(grpcAddr, grpcMws, logger)
		logger.Info("gRPC listener configured", slog.Int("port", cfg.Listen.GRPCPort))
	}

	return srv, nil
}

// Start begins serving. It blocks until the context is canceled or an
// unrecoverable error occurs, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.monitor.Start(ctx)

	if s.configPath != "" {
		s.reloader = config.NewConfigReloader(s.configPath, s.cfg, s.logger)
		s.reloader.Register(s)
		if err := s.reloader.Start(ctx); err != nil {
			return fmt.Errorf("starting config reloader: %w", err)
		}
	}

	listenAddr := fmt.Sprintf("%s:%d", s.cfg.Listen.Host, s.cfg.Listen.Port)
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", listenAddr, err)
		}
	}

	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	if s.grpcServer != nil {
		go func() {
			errCh <- s.grpcServer.Serve()
		}()
		s.grpcServer.SetServing(true)
	}

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown.DrainTimeout.Duration)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// Shutdown drains in-flight requests and stops every component.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.grpcServer != nil {
		s.grpcServer.SetServing(false)
		s.grpcServer.Stop()
	}

	if s.reloader != nil {
		s.reloader.Stop()
	}
	s.monitor.Stop()
	s.memCounter.Stop()

	s.pipelineMu.Lock()
	tg := s.trustGate
	s.pipelineMu.Unlock()
	if tg != nil {
		tg.Stop()
	}
	if s.grpcTrustGate != nil {
		s.grpcTrustGate.Stop()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil && shutdownErr == nil {
			shutdownErr = fmt.Errorf("closing redis client: %w", err)
		}
	}

	return shutdownErr
}

// OnConfigReload applies the reloadable subset of a new configuration:
// log level, lockout policy, profiles, auth, and trust settings. The
// middleware pipeline is rebuilt and swapped atomically.
func (s *Server) OnConfigReload(newCfg *config.Config) error {
	s.logLevel.Set(parseLevel(newCfg.Logging.Level))
	s.violations.SetPolicy(newCfg.Backoff(), newCfg.RateLimit.Cooldown.Duration)
	s.rebuildPipeline(newCfg)
	s.logger.Info("pipeline rebuilt from new configuration")
	return nil
}

// handler builds the server's root handler: health and metrics bypass
// the security pipeline, everything else goes through it.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Health.LivenessPath, s.health.Liveness)
	mux.HandleFunc(s.cfg.Health.ReadinessPath, s.health.Readiness)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.secured.Load().(http.Handler).ServeHTTP(w, r)
	}))
	return mux
}

// rebuildPipeline constructs the middleware chain for cfg and swaps it
// in. The previous trust gate's fingerprint sweeper is stopped.
func (s *Server) rebuildPipeline(cfg *config.Config) {
	mws, tg := s.buildMiddlewares(cfg)
	s.secured.Store(security.ApplyPipeline(s.gateway, mws))

	s.pipelineMu.Lock()
	old := s.trustGate
	s.trustGate = tg
	s.pipelineMu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// buildMiddlewares constructs a fresh middleware chain from cfg,
// sharing the server's long-lived components.
func (s *Server) buildMiddlewares(cfg *config.Config) ([]security.Middleware, *security.TrustGate) {
	deps := security.PipelineDeps{
		Auth: security.AuthSettings{
			Mode:                 cfg.Auth.Mode,
			AllowUnauthenticated: cfg.Auth.AllowUnauthenticated,
			APIKeyHeader:         cfg.Auth.APIKeyHeader,
			AdminSubjects:        cfg.Auth.AdminSubjects,
			Issuer:               cfg.Auth.Issuer,
			Audience:             cfg.Auth.Audience,
			JWKSURL:              cfg.Auth.JWKSURL,
		},
		Trust: security.TrustSettings{
			PublicFacing:   cfg.Trust.PublicFacing(),
			FingerprintTTL: cfg.Trust.FingerprintTTL.Duration,
			Development:    cfg.Logging.Development,
		},
		// Listener settings are not reloadable, so these always come
		// from the boot configuration.
		GlobalRateLimit: s.cfg.Listen.GlobalRateLimit,
		TrustedProxies:  s.cfg.Listen.TrustedProxies,

		Router:    s.router,
		Limiter:   s.limiter,
		Profiles:  cfg.Profiles(),
		Validator: s.validator,

		Metrics: s.metrics,
		AuditSink: audit.NewLogger(s.logger, audit.SamplingConfig{
			Rate:      cfg.Logging.Sampling.Rate,
			ErrorRate: cfg.Logging.Sampling.ErrorRate,
		}),
		RequestMetrics: s.metrics,
		Logger:         s.logger,
	}

	mws := security.BuildPipeline(deps)
	var tg *security.TrustGate
	for _, mw := range mws {
		if g, ok := mw.(*security.TrustGate); ok {
			tg = g
		}
	}
	return mws, tg
}

// buildUpstreams opens each configured upstream's sealed API key. The
// master key is only required when at least one upstream carries a
// sealed key.
func buildUpstreams(cfgs []config.UpstreamConfig) ([]proxy.Upstream, error) {
	var vault *keyvault.Vault
	upstreams := make([]proxy.Upstream, 0, len(cfgs))
	for _, uc := range cfgs {
		apiKey := ""
		if uc.SealedKey != "" {
			if vault == nil {
				v, err := keyvault.FromEnv()
				if err != nil {
					return nil, fmt.Errorf("upstream %q has a sealed key: %w", uc.Name, err)
				}
				vault = v
			}
			opened, err := vault.Open(uc.SealedKey)
			if err != nil {
				return nil, fmt.Errorf("opening sealed key for upstream %q: %w", uc.Name, err)
			}
			apiKey = opened
		}
		upstreams = append(upstreams, proxy.Upstream{
			Name:      uc.Name,
			BaseURL:   uc.URL,
			KeyHeader: uc.KeyHeader,
			APIKey:    apiKey,
			Timeout:   uc.Timeout.Duration,
		})
	}
	return upstreams, nil
}

// buildProbeTargets selects the upstreams with health checks enabled.
func buildProbeTargets(cfgs []config.UpstreamConfig) []upstream.Target {
	var targets []upstream.Target
	for _, uc := range cfgs {
		if !uc.HealthCheck.Enabled {
			continue
		}
		targets = append(targets, upstream.Target{
			Name:     uc.Name,
			BaseURL:  uc.URL,
			Path:     uc.HealthCheck.Path,
			Interval: uc.HealthCheck.Interval.Duration,
			Timeout:  uc.Timeout.Duration,
		})
	}
	return targets
}

// buildLogger creates the process logger. The returned LevelVar lets
// reloads adjust verbosity without replacing the logger.
func buildLogger(cfg config.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler), levelVar
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
