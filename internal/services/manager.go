// Package services wires configuration, storage, the search feed and the
// runner together and drives one-shot and scheduled runs.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/j-veylop/polar-stats/internal/config"
	"github.com/j-veylop/polar-stats/internal/db"
	"github.com/j-veylop/polar-stats/internal/feed"
	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/metrics"
	"github.com/j-veylop/polar-stats/internal/models"
	"github.com/j-veylop/polar-stats/internal/runner"
	"github.com/j-veylop/polar-stats/internal/server"
	"github.com/j-veylop/polar-stats/internal/store"
	"github.com/j-veylop/polar-stats/internal/version"
	"github.com/j-veylop/polar-stats/internal/window"
)

// ErrNoRunHistory is returned by RecentRuns when the backend keeps no history.
var ErrNoRunHistory = errors.New("run history requires the sqlite backend")

// RunEvent is emitted after every run attempt.
type RunEvent struct {
	At     time.Time
	Result *runner.Result
	Err    error
}

// Manager owns the long-lived components of the application.
type Manager struct {
	cfg         *config.Config
	store       store.Store
	database    *db.DB
	runner      *runner.Runner
	registry    *prometheus.Registry
	notify      func(title, message string) error
	now         func() time.Time
	runMu       sync.Mutex
	mu          sync.RWMutex
	subscribers []chan RunEvent
}

// NewManager opens the configured state backend and builds the runner.
func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		now: time.Now,
	}

	var opts []runner.Option

	switch cfg.StateBackend {
	case config.BackendSQLite:
		database, err := db.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if _, err := database.ImportLegacyState(context.Background(), cfg.StatePath); err != nil {
			_ = database.Close()
			return nil, err
		}
		m.database = database
		m.store = database
		opts = append(opts, runner.WithRecorder(database))
	default:
		fs, err := store.NewFileStore(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		m.store = fs
	}

	source, err := newSource(cfg)
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	collectors := metrics.New(m.registry)
	collectors.SetBuildInfo(version.GetVersion(), version.GetCommit(), version.GetDate())
	opts = append(opts, runner.WithMetrics(collectors))
	m.runner = runner.New(runner.Config{MaxPages: cfg.MaxPages, MinPages: cfg.MinPages}, source, m.store, opts...)

	return m, nil
}

func newSource(cfg *config.Config) (*feed.HTTPSource, error) {
	return feed.NewHTTPSource(feed.HTTPConfig{
		URL:      cfg.SearchURL,
		Timeout:  cfg.RequestTimeout,
		PageRate: cfg.PageRate,
	})
}

// RunOnce performs a single run for the hour preceding the current time. It
// fails with store.ErrLocked if another run holds the run lock.
func (m *Manager) RunOnce(ctx context.Context) (*runner.Result, error) {
	return m.runOnce(ctx, false)
}

// runOnce is RunOnce with an optional desktop notification on failure.
func (m *Manager) runOnce(ctx context.Context, notify bool) (*runner.Result, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	lock, err := store.AcquireLock(m.cfg.LockPath, store.DefaultStaleAfter)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			logger.Warn("skipping run, lock held", "path", m.cfg.LockPath, "pid", store.Owner(m.cfg.LockPath))
		}
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error("failed to release run lock", "error", err)
		}
	}()

	now := m.now()
	result, err := m.runner.Run(ctx, now)

	if err != nil && notify && ctx.Err() == nil {
		if nerr := m.notify("polar-stats run failed", err.Error()); nerr != nil {
			logger.Warn("failed to send notification", "error", nerr)
		}
	}

	m.broadcast(RunEvent{At: now, Result: result, Err: err})
	return result, err
}

// Watch runs immediately, unless the stored state already covers the current
// target hour, and then once per hour, RunOffset past the hour, until ctx is
// canceled. Runs never overlap. A failed run does not stop the
// schedule.
func (m *Manager) Watch(ctx context.Context) error {
	if m.cfg.StatusAddr != "" {
		srv := server.New(m.store, m.runLister(), m.registry)
		if _, err := srv.Start(m.cfg.StatusAddr); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("failed to stop status server", "error", err)
			}
		}()
	}

	if m.cfg.EnvFile != "" {
		w, err := config.NewWatcher(m.cfg.EnvFile, m.applyConfig)
		if err != nil {
			logger.Warn("config reload disabled", "error", err)
		} else {
			defer func() {
				if err := w.Close(); err != nil {
					logger.Error("failed to close config watcher", "error", err)
				}
			}()
		}
	}

	skip := m.measuredCurrentHour(ctx)
	for {
		if skip {
			logger.Info("target hour already measured, waiting for the next hour")
			skip = false
		} else {
			// Errors are already logged by the runner and broadcast to subscribers.
			_, _ = m.runOnce(ctx, m.cfg.Notify)
		}

		delay := NextRunDelay(m.now(), m.cfg.RunOffset)
		logger.Debug("next run scheduled", "in", delay.Round(time.Second).String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// measuredCurrentHour reports whether the stored state already holds the
// hour a run started now would measure. Counting it again would double the
// monthly tally.
func (m *Manager) measuredCurrentHour(ctx context.Context) bool {
	state, err := m.store.Load(ctx)
	if err != nil {
		return false
	}
	last, ok := state.LastTargetHour()
	return ok && last == window.TargetHourAt(m.now())
}

// NextRunDelay returns how long to wait from now until offset past the next
// hour boundary.
func NextRunDelay(now time.Time, offset time.Duration) time.Duration {
	next := now.Truncate(time.Hour).Add(offset)
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next.Sub(now)
}

// applyConfig swaps in a page source built from a reloaded configuration.
// Storage settings only take effect on restart.
func (m *Manager) applyConfig(cfg *config.Config) {
	source, err := newSource(cfg)
	if err != nil {
		logger.Warn("ignoring reloaded search settings", "error", err)
		return
	}
	m.runner.SetSource(source)
	logger.Info("search settings reloaded", "url", cfg.SearchURL)
}

func (m *Manager) runLister() server.RunLister {
	if m.database == nil {
		return nil
	}
	return m.database
}

// State returns the currently stored state.
func (m *Manager) State(ctx context.Context) (models.AggregateState, error) {
	return m.store.Load(ctx)
}

// RecentRuns returns the latest recorded runs, newest first.
func (m *Manager) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if m.database == nil {
		return nil, ErrNoRunHistory
	}
	return m.database.RecentRuns(ctx, limit)
}

// Registry returns the Prometheus registry the run metrics are published to.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Subscribe returns a channel receiving every subsequent RunEvent. Events are
// dropped for subscribers that fall behind.
func (m *Manager) Subscribe() chan RunEvent {
	ch := make(chan RunEvent, 8)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan RunEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (m *Manager) broadcast(event RunEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Close releases the database and closes all subscriber channels.
func (m *Manager) Close() error {
	m.mu.Lock()
	for _, sub := range m.subscribers {
		close(sub)
	}
	m.subscribers = nil
	m.mu.Unlock()

	if m.database != nil {
		return m.database.Close()
	}
	return nil
}
