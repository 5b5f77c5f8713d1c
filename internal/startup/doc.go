// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - STORAGE_ROOT: App documents directory holding permanent_images (default: /data/documents)
//   - CACHE_DIR: Legacy cache directory purged by migration (default: /data/cache)
//   - DATABASE_DIR: Directory for wardrobe.db (default: /data/db)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - CLEANUP_INTERVAL: Scheduled orphan cleanup interval as Go duration (default: 24h)
//   - STORAGE_CAP: Storage budget, e.g. "500MB" or "1GiB" (default: 500MB)
//   - SOFT_THRESHOLD: Usage ratio above which scheduled cleanup runs (default: 0.70)
//   - MAX_ORIGINAL_WIDTH: Longest stored original width in pixels (default: 1920)
//   - THUMBNAIL_WIDTH: Thumbnail width in pixels (default: 300)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log image file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// Storage and database directories are created when missing and tested for
// write access; a failure aborts startup.
//
// # Logging
//
// The Log* functions print the sectioned startup and shutdown output so every
// phase reports in the same format.
package startup
