package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wardrobe_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wardrobe_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Ingestion metrics
var (
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_image_ingestions_total",
			Help: "Total number of image ingestions by status",
		},
		[]string{"status"}, // "success", "error"
	)

	IngestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wardrobe_image_ingestion_duration_seconds",
			Help:    "Image ingestion phase duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"phase"}, // "original", "thumbnail", "total"
	)

	ThumbnailFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wardrobe_thumbnail_fallbacks_total",
			Help: "Thumbnails produced by copying the original after generation failed",
		},
	)
)

// Registry and storage metrics
var (
	RegistryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_registry_entries",
			Help: "Number of entries in the image registry",
		},
	)

	RegistryNormalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wardrobe_registry_normalized_total",
			Help: "Registry entries rewritten from absolute to relative paths",
		},
	)

	StorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_storage_bytes",
			Help: "Bytes used by originals and thumbnails",
		},
	)

	StorageHealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_storage_health_score",
			Help: "Derived storage health score (0-100)",
		},
	)

	ItemsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_items_total",
			Help: "Number of clothing items in the item store",
		},
	)

	ItemsMissingImage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_items_missing_image",
			Help: "Number of clothing items currently flagged as missing their image",
		},
	)
)

// Lifecycle metrics
var (
	ReconcileItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_reconcile_items_total",
			Help: "Items touched by reconciliation by outcome",
		},
		[]string{"outcome"}, // "flagged", "cleared", "removed"
	)

	MigrationItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_migration_items_total",
			Help: "Items processed by the migration engine by pass and status",
		},
		[]string{"pass", "status"},
	)

	CleanupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_cleanup_runs_total",
			Help: "Cleanup runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // trigger: "scheduled", "emergency", "manual"
	)

	CleanupFreedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wardrobe_cleanup_freed_bytes_total",
			Help: "Bytes freed by orphan cleanup",
		},
	)

	CleanupDeletedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wardrobe_cleanup_deleted_files_total",
			Help: "Files deleted by orphan cleanup",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wardrobe_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_filesystem_operation_errors_total",
			Help: "Filesystem operation errors",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_filesystem_retry_attempts_total",
			Help: "Filesystem retry attempts after a stale handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardrobe_filesystem_stale_errors_total",
			Help: "Stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardrobe_memory_paused",
			Help: "1 while image decoding is paused for memory pressure",
		},
	)
)

var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wardrobe_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
