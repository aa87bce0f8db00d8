package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloadable is implemented by components that can update their
// configuration at runtime. Returned errors are logged; they do not
// stop the reload or the other subscribers.
type Reloadable interface {
	OnConfigReload(newCfg *Config) error
}

// ConfigReloader coordinates hot configuration reloads. A reload is
// triggered by SIGHUP, or by a change to the config file when file
// watching is enabled. An invalid file never replaces the active
// configuration.
type ConfigReloader struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration
	watch    bool

	active atomic.Pointer[Config]

	mu   sync.RWMutex
	subs []Reloadable

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConfigReloader creates a ConfigReloader with initialCfg as the
// active configuration. Debounce and file-watch settings come from the
// initial configuration's reload section.
func NewConfigReloader(configPath string, initialCfg *Config, logger *slog.Logger) *ConfigReloader {
	r := &ConfigReloader{
		path:     configPath,
		logger:   logger,
		debounce: initialCfg.Reload.Debounce.Duration,
		watch:    initialCfg.Reload.WatchFile,
		done:     make(chan struct{}),
	}
	r.active.Store(initialCfg)
	return r
}

// Register adds a reload subscriber. Must be called before Start.
func (r *ConfigReloader) Register(sub Reloadable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
}

// Current returns the active configuration. Safe for concurrent use.
func (r *ConfigReloader) Current() *Config {
	return r.active.Load()
}

// Start begins listening for reload triggers until the context is
// canceled or Stop is called.
func (r *ConfigReloader) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP)

	var watcher *fsnotify.Watcher
	if r.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		if err := w.Add(r.path); err != nil {
			w.Close()
			return fmt.Errorf("watching config file %q: %w", r.path, err)
		}
		watcher = w
		r.logger.Info("watching config file",
			slog.String("path", r.path),
			slog.Duration("debounce", r.debounce),
		)
	}

	go r.loop(ctx, sigs, watcher)
	return nil
}

// Stop shuts down the reloader and waits for its loop to exit.
func (r *ConfigReloader) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

// Reload loads, validates, and activates the config file, then notifies
// subscribers. Non-reloadable changes are logged and skipped; if the
// file is invalid the active configuration is kept and an error returned.
func (r *ConfigReloader) Reload() error {
	next, err := Load(r.path)
	if err != nil {
		r.logger.Error("rejecting invalid config, keeping active one",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("config reload: %w", err)
	}

	changes := Diff(r.active.Load(), next)
	if len(changes) == 0 {
		r.logger.Info("config unchanged, nothing to reload")
		return nil
	}

	restartOnly := 0
	for _, c := range changes {
		if !c.Reloadable {
			restartOnly++
		}
		r.logger.LogAttrs(context.Background(), changeLevel(c), "config change",
			slog.String("field", c.Field),
			slog.Any("old", c.OldValue),
			slog.Any("new", c.NewValue),
			slog.Bool("reloadable", c.Reloadable),
		)
	}
	if restartOnly > 0 {
		r.logger.Warn("changes requiring a restart were ignored",
			slog.Int("count", restartOnly),
		)
	}

	r.active.Store(next)

	for _, sub := range r.subscribers() {
		if err := sub.OnConfigReload(next); err != nil {
			r.logger.Error("subscriber reload failed",
				slog.String("subscriber", fmt.Sprintf("%T", sub)),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Info("configuration reloaded",
		slog.Int("changes", len(changes)),
		slog.String("path", r.path),
	)
	return nil
}

func changeLevel(c Change) slog.Level {
	if c.Reloadable {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func (r *ConfigReloader) subscribers() []Reloadable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := make([]Reloadable, len(r.subs))
	copy(subs, r.subs)
	return subs
}

// loop waits for SIGHUP and file events. File events are debounced so
// editors that write in several steps trigger a single reload.
func (r *ConfigReloader) loop(ctx context.Context, sigs chan os.Signal, watcher *fsnotify.Watcher) {
	defer close(r.done)
	defer signal.Stop(sigs)
	if watcher != nil {
		defer watcher.Close()
	}

	// Nil channels block forever, which disables the watcher cases
	// cleanly when file watching is off.
	var events chan fsnotify.Event
	var watchErrs chan error
	if watcher != nil {
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return

		case sig := <-sigs:
			r.logger.Info("reload requested by signal", slog.String("signal", sig.String()))
			if err := r.Reload(); err != nil {
				r.logger.Error("signal-triggered reload failed", slog.String("error", err.Error()))
			}

		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(r.debounce)
			}

		case err, ok := <-watchErrs:
			if !ok {
				return
			}
			r.logger.Error("file watcher error", slog.String("error", err.Error()))

		case <-debounce.C:
			r.logger.Info("config file changed", slog.String("path", r.path))
			// Editors often replace the file; re-adding the path keeps
			// the watch alive across renames.
			if watcher != nil {
				_ = watcher.Add(r.path)
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("file-triggered reload failed", slog.String("error", err.Error()))
			}
		}
	}
}
