// Package metrics provides Prometheus instrumentation for the wardrobe
// storage service. All metrics are prefixed with "wardrobe_".
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests
//   - Database: query counts and durations per operation
//   - Ingestion: ingestions by status, per-phase durations, thumbnail fallbacks
//   - Registry and storage: entry count, bytes on disk, health score
//   - Lifecycle: reconcile outcomes, migration passes, cleanup runs and freed bytes
//   - Filesystem: operation latency and stale-handle retries, recorded through
//     the filesystem.Observer interface to avoid an import cycle
//
// Metrics are registered with the default registry through promauto. Mount
// promhttp.Handler() to expose them:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// The [Collector] polls a [StatsProvider] and publishes gauge values that are
// expensive to keep current on every write, such as total bytes on disk.
package metrics
