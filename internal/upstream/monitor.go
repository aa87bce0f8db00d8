// Package upstream probes the health of configured backends on an
// interval so readiness and the proxy's error reporting reflect reality
// rather than the last failed request.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Target is one upstream to probe.
type Target struct {
	Name     string
	BaseURL  string
	Path     string // health endpoint path, e.g. /v1/models
	Interval time.Duration
	Timeout  time.Duration
}

// HealthObserver receives health transitions, typically the metrics collector.
type HealthObserver interface {
	SetUpstreamHealth(upstream string, healthy bool)
}

// Monitor polls each target on its interval and records the result.
type Monitor struct {
	targets  []Target
	client   *http.Client
	logger   *slog.Logger
	observer HealthObserver

	mu     sync.RWMutex
	health map[string]targetState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type targetState struct {
	healthy   bool
	lastError error
	lastProbe time.Time
}

// NewMonitor creates a Monitor. observer may be nil.
func NewMonitor(targets []Target, logger *slog.Logger, observer HealthObserver) *Monitor {
	health := make(map[string]targetState, len(targets))
	for _, t := range targets {
		// Optimistic until the first probe completes: a gateway start
		// should not flap readiness while probes are in flight.
		health[t.Name] = targetState{healthy: true}
	}
	return &Monitor{
		targets:  targets,
		client:   &http.Client{},
		logger:   logger,
		observer: observer,
		health:   health,
	}
}

// Start launches one probe loop per target. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	for _, t := range m.targets {
		m.wg.Add(1)
		go func(t Target) {
			defer m.wg.Done()
			m.pollTarget(ctx, t)
		}(t)
	}
}

// Stop terminates all probe loops and waits for them to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Healthy reports whether the named upstream passed its last probe.
// Unknown names report false.
func (m *Monitor) Healthy(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health[name].healthy
}

// HealthyUpstreams returns the names of upstreams passing their probes.
func (m *Monitor) HealthyUpstreams() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.health))
	for name, s := range m.health {
		if s.healthy {
			names = append(names, name)
		}
	}
	return names
}

// AllUpstreamNames returns every monitored upstream name.
func (m *Monitor) AllUpstreamNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.health))
	for name := range m.health {
		names = append(names, name)
	}
	return names
}

// pollTarget runs the probe loop for one target until the context ends.
func (m *Monitor) pollTarget(ctx context.Context, t Target) {
	// Probe immediately on start.
	m.probe(ctx, t)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx, t)
		}
	}
}

// probe performs one health check and records the transition.
func (m *Monitor) probe(ctx context.Context, t Target) {
	err := m.check(ctx, t)

	m.mu.Lock()
	prev := m.health[t.Name]
	m.health[t.Name] = targetState{
		healthy:   err == nil,
		lastError: err,
		lastProbe: time.Now(),
	}
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.SetUpstreamHealth(t.Name, err == nil)
	}

	if err != nil && prev.healthy {
		m.logger.Warn("upstream became unhealthy",
			slog.String("upstream", t.Name),
			slog.String("error", err.Error()),
		)
	}
	if err == nil && !prev.healthy {
		m.logger.Info("upstream recovered", slog.String("upstream", t.Name))
	}
}

// check performs the HTTP probe. Any 2xx-4xx answer counts as alive;
// only connection failures and 5xx mark the upstream down, since an
// auth-rejected probe still proves the service is reachable.
func (m *Monitor) check(ctx context.Context, t Target) error {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(t.BaseURL, "/") + t.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", t.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("probing %s: HTTP %d", t.Name, resp.StatusCode)
	}
	return nil
}
