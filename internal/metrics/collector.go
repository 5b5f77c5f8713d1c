package metrics

import (
	"context"
	"time"

	"wardrobe-storage/internal/logging"
)

var collectorLog = logging.Component("metrics")

// StatsProvider reports point-in-time storage statistics.
type StatsProvider interface {
	CollectStats(ctx context.Context) (Stats, error)
}

// Stats holds the values the collector publishes as gauges.
type Stats struct {
	RegistryEntries   int
	TotalItems        int
	ItemsMissingImage int
	StorageBytes      int64
	HealthScore       int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := c.statsProvider.CollectStats(ctx)
	if err != nil {
		collectorLog.Warn("failed to collect storage stats: %v", err)
		return
	}

	RegistryEntries.Set(float64(stats.RegistryEntries))
	ItemsTotal.Set(float64(stats.TotalItems))
	ItemsMissingImage.Set(float64(stats.ItemsMissingImage))
	StorageBytes.Set(float64(stats.StorageBytes))
	StorageHealthScore.Set(float64(stats.HealthScore))

	collectorLog.Debug("collected: entries=%d, items=%d, missing=%d, bytes=%d, score=%d",
		stats.RegistryEntries, stats.TotalItems, stats.ItemsMissingImage, stats.StorageBytes, stats.HealthScore)
}
