package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/mediatypes"
	"wardrobe-storage/internal/metrics"
	"wardrobe-storage/internal/registry"
)

var migLog = logging.Component("migration")

// LegacyCacheKeys are the key-value records of the old cache-directory
// thumbnail scheme. They are purged, never migrated.
var LegacyCacheKeys = []string{
	"thumbnail_cache_map",
	"image_cache_metadata",
	"optimized_image_cache",
}

// LegacyCacheDirs are the old thumbnail trees, relative to the cache directory.
var LegacyCacheDirs = []string{
	"thumbnails",
	"image_cache",
}

// ItemStore is the part of the clothing item store migration rewrites.
type ItemStore interface {
	ListItems(ctx context.Context) ([]database.Item, error)
	UpdateImageState(ctx context.Context, id string, patch database.ImageStatePatch) error
}

// Report counts what one run changed.
type Report struct {
	Normalized int `json:"normalized"`
	Migrated   int `json:"migrated"`
	PurgedKeys int `json:"purgedKeys"`
	PurgedDirs int `json:"purgedDirs"`
	Failed     int `json:"failed"`
}

// Total returns the number of migrated item images.
func (r Report) Total() int {
	return r.Migrated
}

// Config holds the engine's collaborators.
type Config struct {
	Resolver    *filesystem.Resolver
	Layout      filesystem.Layout
	Provisioner *filesystem.Provisioner
	Registry    *registry.Registry
	KV          registry.KV
	Items       ItemStore
	CacheDir    string
}

// Engine brings persisted state written by older releases up to the current
// layout. It runs once per session; concurrent callers share the run.
type Engine struct {
	cfg   Config
	group singleflight.Group
	done  atomic.Bool
}

// New creates a migration engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Run executes every migration pass. After a successful run further calls
// return a zero report until Reset.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	if e.done.Load() {
		return Report{}, nil
	}

	ch := e.group.DoChan("migrate", func() (interface{}, error) {
		if e.done.Load() {
			return Report{}, nil
		}
		report, err := e.run(ctx)
		if err == nil {
			e.done.Store(true)
		}
		return report, err
	})

	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		report, _ := res.Val.(Report)
		return report, res.Err
	}
}

// Reset allows Run to execute again.
func (e *Engine) Reset() {
	e.done.Store(false)
}

func (e *Engine) run(ctx context.Context) (Report, error) {
	var report Report

	if err := e.cfg.Provisioner.EnsureDirectories(ctx); err != nil {
		return report, err
	}

	n, err := e.cfg.Registry.NormalizeAll(ctx)
	if err != nil {
		metrics.MigrationItemsTotal.WithLabelValues("registry", "error").Inc()
		return report, fmt.Errorf("registry normalization failed: %w", err)
	}
	report.Normalized += n
	metrics.MigrationItemsTotal.WithLabelValues("registry", "success").Add(float64(n))

	e.purgeLegacyCache(ctx, &report)

	if err := e.migrateLegacyItems(ctx, &report); err != nil {
		return report, err
	}

	if report != (Report{}) {
		migLog.Info("migration complete: %d normalized, %d migrated, %d keys and %d dirs purged, %d failed",
			report.Normalized, report.Migrated, report.PurgedKeys, report.PurgedDirs, report.Failed)
	} else {
		migLog.Debug("migration: nothing to do")
	}
	return report, nil
}

// purgeLegacyCache deletes the old cache maps and their thumbnail trees.
func (e *Engine) purgeLegacyCache(ctx context.Context, report *Report) {
	for _, key := range LegacyCacheKeys {
		existed, err := e.cfg.KV.DeleteValue(ctx, key)
		if err != nil {
			migLog.Warn("failed to delete legacy key %s: %v", key, err)
			metrics.MigrationItemsTotal.WithLabelValues("legacy_cache", "error").Inc()
			report.Failed++
			continue
		}
		if existed {
			report.PurgedKeys++
			metrics.MigrationItemsTotal.WithLabelValues("legacy_cache", "success").Inc()
		}
	}

	if e.cfg.CacheDir == "" {
		return
	}
	for _, name := range LegacyCacheDirs {
		dir := filepath.Join(e.cfg.CacheDir, name)
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			migLog.Warn("failed to remove legacy cache dir %s: %v", dir, err)
			metrics.MigrationItemsTotal.WithLabelValues("legacy_cache", "error").Inc()
			report.Failed++
			continue
		}
		report.PurgedDirs++
		metrics.MigrationItemsTotal.WithLabelValues("legacy_cache", "success").Inc()
		migLog.Info("removed legacy cache dir %s", dir)
	}
}

// migrateLegacyItems moves images referenced by item fields into the current
// layout. Per-item failures are logged and skipped.
func (e *Engine) migrateLegacyItems(ctx context.Context, report *Report) error {
	items, err := e.cfg.Items.ListItems(ctx)
	if err != nil {
		metrics.MigrationItemsTotal.WithLabelValues("legacy_items", "error").Inc()
		return fmt.Errorf("failed to list items: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		var patch database.ImageStatePatch
		migrated := 0

		original, copied, err := e.migrateField(item.ID, item.OriginalImageURI, false)
		if err != nil {
			migLog.Warn("item %s: original not migrated: %v", item.ID, err)
			report.Failed++
			metrics.MigrationItemsTotal.WithLabelValues("legacy_items", "error").Inc()
		} else if original != item.OriginalImageURI {
			patch.OriginalImageURI = &original
			if copied {
				migrated++
			}
		}

		thumb, copied, err := e.migrateField(item.ID, item.ThumbnailImageURI, true)
		if err != nil {
			migLog.Warn("item %s: thumbnail not migrated: %v", item.ID, err)
			report.Failed++
			metrics.MigrationItemsTotal.WithLabelValues("legacy_items", "error").Inc()
		} else if thumb != item.ThumbnailImageURI {
			patch.ThumbnailImageURI = &thumb
			if copied {
				migrated++
			}
		}

		if patch.Empty() {
			continue
		}
		if err := e.cfg.Items.UpdateImageState(ctx, item.ID, patch); err != nil {
			migLog.Warn("item %s: failed to rewrite image fields: %v", item.ID, err)
			report.Failed++
			metrics.MigrationItemsTotal.WithLabelValues("legacy_items", "error").Inc()
			continue
		}
		report.Migrated += migrated
		report.Normalized += fieldCount(patch) - migrated
		metrics.MigrationItemsTotal.WithLabelValues("legacy_items", "success").Inc()
	}
	return nil
}

// migrateField returns the relative value a legacy item field should hold.
// Files under the storage root but outside the current layout are copied in
// (copied=true). Fields pointing outside the storage root are left alone.
func (e *Engine) migrateField(itemID, uri string, thumbnail bool) (value string, copied bool, err error) {
	if uri == "" {
		return uri, false, nil
	}
	rel := e.cfg.Resolver.Normalize(uri)
	if filepath.IsAbs(rel) || strings.Contains(rel, "://") {
		return uri, false, nil
	}
	if filesystem.InStorage(rel) {
		return rel, false, nil
	}

	src := e.cfg.Resolver.ToAbsolute(rel)
	if _, ok := filesystem.NonEmptyFileSize(src); !ok {
		return "", false, fmt.Errorf("legacy file %s is missing or empty", rel)
	}

	ext := mediatypes.SafeExtension(rel, "", "")
	dstRel := e.cfg.Layout.OriginalPath(itemID, ext)
	if thumbnail {
		dstRel = path.Join(e.cfg.Layout.Thumbnails, itemID+"_thumb."+ext)
	}
	tempDir := e.cfg.Resolver.ToAbsolute(e.cfg.Layout.Temp)
	if _, err := filesystem.CopyFile(tempDir, src, e.cfg.Resolver.ToAbsolute(dstRel)); err != nil {
		return "", false, err
	}
	migLog.Debug("item %s: copied %s to %s", itemID, rel, dstRel)
	return dstRel, true, nil
}

func fieldCount(p database.ImageStatePatch) int {
	n := 0
	if p.OriginalImageURI != nil {
		n++
	}
	if p.ThumbnailImageURI != nil {
		n++
	}
	return n
}
