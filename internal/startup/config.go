package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"wardrobe-storage/internal/logging"
)

// Config holds all application configuration
type Config struct {
	StorageRoot     string
	CacheDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	CleanupInterval time.Duration
	StorageCap      int64
	SoftThreshold   float64
	MaxOriginalSize int
	ThumbnailWidth  int
	LogStaticFiles  bool
	LogHealthChecks bool

	// Derived paths
	DatabasePath string
}

// Defaults
const (
	defaultStorageRoot     = "/data/documents"
	defaultCacheDir        = "/data/cache"
	defaultDatabaseDir     = "/data/db"
	defaultCleanupInterval = 24 * time.Hour
	defaultStorageCap      = "500MB"
	defaultSoftThreshold   = 0.70
	defaultMaxOriginal     = 1920
	defaultThumbnailWidth  = 300
)

// LoadConfig loads and validates configuration from environment variables,
// printing the startup banner and a configuration dump.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")

	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	logging.Info("  STORAGE_ROOT:        %s", cfg.StorageRoot)
	logging.Info("  CACHE_DIR:           %s", cfg.CacheDir)
	logging.Info("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  CLEANUP_INTERVAL:    %v", cfg.CleanupInterval)
	logging.Info("  STORAGE_CAP:         %s", humanize.Bytes(uint64(cfg.StorageCap)))
	logging.Info("  SOFT_THRESHOLD:      %.2f", cfg.SoftThreshold)
	logging.Info("  MAX_ORIGINAL_WIDTH:  %d", cfg.MaxOriginalSize)
	logging.Info("  THUMBNAIL_WIDTH:     %d", cfg.ThumbnailWidth)
	logging.Info("  LOG_STATIC_FILES:    %v", cfg.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	section("DIRECTORY SETUP")

	if err := ensureDirectory(cfg.StorageRoot, "storage"); err != nil {
		return nil, fmt.Errorf("storage root error: %w", err)
	}
	if err := testWriteAccess(cfg.StorageRoot); err != nil {
		return nil, fmt.Errorf("storage root is not writable: %w", err)
	}
	logging.Info("  [OK] Storage root is writable")

	if err := ensureDirectory(cfg.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	// The cache directory only holds legacy thumbnails awaiting purge.
	if _, err := os.Stat(cfg.CacheDir); err != nil {
		logging.Debug("  Cache directory not present, legacy purge will skip it")
	}

	return cfg, nil
}

// configFromEnv reads and validates the environment without touching disk.
func configFromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", defaultCleanupInterval),
		SoftThreshold:   getEnvFloat("SOFT_THRESHOLD", defaultSoftThreshold),
		MaxOriginalSize: getEnvInt("MAX_ORIGINAL_WIDTH", defaultMaxOriginal),
		ThumbnailWidth:  getEnvInt("THUMBNAIL_WIDTH", defaultThumbnailWidth),
		LogStaticFiles:  getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
	}

	capStr := getEnv("STORAGE_CAP", defaultStorageCap)
	capBytes, err := humanize.ParseBytes(capStr)
	if err != nil || capBytes == 0 {
		return nil, fmt.Errorf("invalid STORAGE_CAP %q: %v", capStr, err)
	}
	cfg.StorageCap = int64(capBytes)

	if cfg.SoftThreshold <= 0 || cfg.SoftThreshold >= 1 {
		return nil, fmt.Errorf("SOFT_THRESHOLD must be between 0 and 1, got %v", cfg.SoftThreshold)
	}
	if cfg.MaxOriginalSize <= 0 || cfg.ThumbnailWidth <= 0 {
		return nil, fmt.Errorf("MAX_ORIGINAL_WIDTH and THUMBNAIL_WIDTH must be positive")
	}

	for _, d := range []struct {
		dst *string
		key string
		def string
	}{
		{&cfg.StorageRoot, "STORAGE_ROOT", defaultStorageRoot},
		{&cfg.CacheDir, "CACHE_DIR", defaultCacheDir},
		{&cfg.DatabaseDir, "DATABASE_DIR", defaultDatabaseDir},
	} {
		abs, err := filepath.Abs(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", d.key, err)
		}
		*d.dst = abs
	}
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, "wardrobe.db")

	return cfg, nil
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid %s %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
