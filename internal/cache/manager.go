package cache

import (
	"context"
	"sync"
	"time"

	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/metrics"
	"wardrobe-storage/internal/registry"
)

var gcLog = logging.Component("cache")

// Defaults for Config fields left zero.
const (
	DefaultCap             int64   = 500 * 1000 * 1000
	DefaultSoftThreshold   float64 = 0.70
	DefaultEmergencyTarget float64 = 0.90
	DefaultInterval                = 24 * time.Hour
)

// ItemSource is the part of the clothing item store the cache manager reads.
type ItemSource interface {
	ActiveItemIDs(ctx context.Context) (map[string]struct{}, error)
	CountItems(ctx context.Context) (total, missing int, err error)
}

// Config configures a Manager.
type Config struct {
	Resolver *filesystem.Resolver
	Layout   filesystem.Layout
	Registry *registry.Registry
	Items    ItemSource

	// Cap is the storage budget in bytes. HealthCheck triggers an emergency
	// cleanup above it.
	Cap int64
	// SoftThreshold is the fraction of Cap above which scheduled cleanups
	// delete anything.
	SoftThreshold float64
	// EmergencyTarget is the fraction of Cap an emergency cleanup must get
	// under to report success.
	EmergencyTarget float64
	// Interval between scheduled cleanups.
	Interval time.Duration
}

func (c *Config) setDefaults() {
	if c.Cap <= 0 {
		c.Cap = DefaultCap
	}
	if c.SoftThreshold <= 0 {
		c.SoftThreshold = DefaultSoftThreshold
	}
	if c.EmergencyTarget <= 0 {
		c.EmergencyTarget = DefaultEmergencyTarget
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
}

// Manager garbage-collects stored images and reports storage health. Only
// one cleanup runs at a time.
type Manager struct {
	cfg Config

	// mu is held for the duration of any cleanup.
	mu sync.Mutex

	lifecycle sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
}

// New creates a cache manager.
func New(cfg Config) *Manager {
	cfg.setDefaults()
	return &Manager{cfg: cfg}
}

// Cap returns the configured storage budget in bytes.
func (m *Manager) Cap() int64 {
	return m.cfg.Cap
}

// Start runs scheduled cleanups every Interval until Stop. Calling Start on a
// running manager does nothing.
func (m *Manager) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.stopChan != nil {
		return
	}
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop(m.stopChan, m.done)
	gcLog.Info("scheduled cleanup every %v", m.cfg.Interval)
}

// Stop ends the scheduler and waits for an in-progress tick to finish.
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.stopChan == nil {
		return
	}
	close(m.stopChan)
	<-m.done
	m.stopChan = nil
	m.done = nil
	gcLog.Info("scheduled cleanup stopped")
}

func (m *Manager) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-stop:
					cancel()
				case <-ctx.Done():
				}
			}()
			if _, _, err := m.ScheduledCleanup(ctx); err != nil {
				gcLog.Error("scheduled cleanup failed: %v", err)
			}
			cancel()
		}
	}
}

// ScheduledCleanup is one scheduler tick. It is skipped when another cleanup
// holds the lock, and only deletes when usage is above the soft threshold or
// the analysis found structural issues. performed reports whether a cleanup
// ran.
func (m *Manager) ScheduledCleanup(ctx context.Context) (result CleanupResult, performed bool, err error) {
	if !m.mu.TryLock() {
		gcLog.Debug("cleanup already running, skipping scheduled tick")
		metrics.CleanupRunsTotal.WithLabelValues("scheduled", "skipped").Inc()
		return result, false, nil
	}
	defer m.mu.Unlock()

	report, err := m.Analyze(ctx)
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("scheduled", "error").Inc()
		return result, false, err
	}
	if report.UsageRatio <= m.cfg.SoftThreshold && report.IssueCount() == 0 {
		gcLog.Debug("storage healthy (%.0f%% of cap), nothing to clean", report.UsageRatio*100)
		metrics.CleanupRunsTotal.WithLabelValues("scheduled", "skipped").Inc()
		return result, false, nil
	}

	active, err := m.cfg.Items.ActiveItemIDs(ctx)
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("scheduled", "error").Inc()
		return result, false, err
	}
	result, err = m.cleanupLocked(ctx, active)
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("scheduled", "error").Inc()
		return result, true, err
	}
	metrics.CleanupRunsTotal.WithLabelValues("scheduled", "performed").Inc()
	return result, true, nil
}
