package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"wardrobe-storage/internal/metrics"
)

// Config holds memory guard configuration
type Config struct {
	// LimitBytes is the soft limit; 0 uses GOMEMLIMIT.
	LimitBytes int64

	// HighWaterMark resumes decoding once usage drops below it.
	HighWaterMark float64

	// CriticalWaterMark pauses decoding once usage reaches it.
	CriticalWaterMark float64

	CheckInterval time.Duration
}

// DefaultConfig returns the guard's default thresholds.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     2 * time.Second,
	}
}

// Monitor samples heap usage and holds back image decoding while the heap is
// near its limit. A Monitor without a limit never blocks.
type Monitor struct {
	config   Config
	limit    int64
	readHeap func() uint64

	mu        sync.Mutex
	current   uint64
	paused    bool
	resume    chan struct{}
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
	startOnce sync.Once
}

// NewMonitor creates a monitor. It does nothing until Start.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		memLog.Debug("no memory limit configured, decode guard disabled")
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		readHeap: heapAlloc,
		resume:   make(chan struct{}),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		if m.limit == 0 {
			close(m.done)
			return
		}
		go m.loop()
	})
}

// Stop ends sampling and releases any waiters.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.Start()
	<-m.done
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) sample() {
	alloc := m.readHeap()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit == 0 {
		return
	}
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.paused:
		memLog.Warn("heap at %.1f%% of limit, pausing image decoding", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.paused:
		memLog.Info("heap back to %.1f%% of limit, resuming image decoding", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait blocks while decoding is paused. It returns ctx.Err() if ctx ends
// first and nil once decoding may proceed or the monitor stops.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-m.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether decoding is currently held back.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled heap usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.current) / float64(m.limit)
}
