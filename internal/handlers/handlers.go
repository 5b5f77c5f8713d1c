package handlers

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"wardrobe-storage/internal/cache"
	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/media"
	"wardrobe-storage/internal/migration"
	"wardrobe-storage/internal/registry"
	"wardrobe-storage/internal/validator"
)

const (
	healthCacheTTL     = 30 * time.Second
	healthCacheKey     = "storage_health"
	defaultUploadLimit = 32 << 20
)

// Services are the storage components the API exposes.
type Services struct {
	DB        *database.Database
	Resolver  *filesystem.Resolver
	Layout    filesystem.Layout
	Registry  *registry.Registry
	Ingestor  *media.Ingestor
	Validator *validator.Validator
	Migration *migration.Engine
	Cache     *cache.Manager
}

// Handlers serves the storage HTTP API.
type Handlers struct {
	Services

	reports     *gocache.Cache
	uploadLimit int64
	ready       atomic.Bool
	startTime   time.Time
}

// New creates the API handlers. They report not-ready until SetReady.
func New(s Services) *Handlers {
	return &Handlers{
		Services:    s,
		reports:     gocache.New(healthCacheTTL, 2*healthCacheTTL),
		uploadLimit: defaultUploadLimit,
		startTime:   time.Now(),
	}
}

// SetReady marks startup migration and reconciliation as finished.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}

// invalidateReports drops the cached storage health report after a change.
func (h *Handlers) invalidateReports() {
	h.reports.Delete(healthCacheKey)
}
