package app

import (
	"context"
	"fmt"
	"time"

	"wardrobe-storage/internal/cache"
	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/media"
	"wardrobe-storage/internal/migration"
	"wardrobe-storage/internal/registry"
	"wardrobe-storage/internal/validator"
)

var appLog = logging.Component("app")

// Options configures the storage services.
type Options struct {
	StorageRoot  string
	CacheDir     string
	DatabasePath string

	StorageCap      int64
	SoftThreshold   float64
	CleanupInterval time.Duration

	MaxOriginalWidth int
	ThumbnailWidth   int
}

// App holds one instance of every storage service. Services are constructed
// once and shared by the HTTP API, the scheduler and the CLI.
type App struct {
	DB          *database.Database
	Resolver    *filesystem.Resolver
	Layout      filesystem.Layout
	Provisioner *filesystem.Provisioner
	Registry    *registry.Registry
	Assets      *media.LocalAssetResolver
	Ingestor    *media.Ingestor
	Validator   *validator.Validator
	Migration   *migration.Engine
	Cache       *cache.Manager
}

// Open opens the database and wires the storage services around it.
func Open(ctx context.Context, opts Options) (*App, error) {
	resolver, err := filesystem.NewResolver(opts.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid storage root: %w", err)
	}

	db, err := database.New(ctx, opts.DatabasePath)
	if err != nil {
		return nil, err
	}

	layout := filesystem.DefaultLayout()
	prov := filesystem.NewProvisioner(resolver, layout)
	reg := registry.New(db, resolver)
	assets := media.NewLocalAssetResolver()

	ingestOpts := media.DefaultOptions()
	if opts.MaxOriginalWidth > 0 {
		ingestOpts.MaxOriginalWidth = opts.MaxOriginalWidth
	}
	if opts.ThumbnailWidth > 0 {
		ingestOpts.ThumbnailWidth = opts.ThumbnailWidth
	}

	return &App{
		DB:          db,
		Resolver:    resolver,
		Layout:      layout,
		Provisioner: prov,
		Registry:    reg,
		Assets:      assets,
		Ingestor:    media.NewIngestor(resolver, layout, prov, reg, assets, ingestOpts),
		Validator:   validator.New(resolver, layout, reg, db),
		Migration: migration.New(migration.Config{
			Resolver:    resolver,
			Layout:      layout,
			Provisioner: prov,
			Registry:    reg,
			KV:          db,
			Items:       db,
			CacheDir:    opts.CacheDir,
		}),
		Cache: cache.New(cache.Config{
			Resolver:      resolver,
			Layout:        layout,
			Registry:      reg,
			Items:         db,
			Cap:           opts.StorageCap,
			SoftThreshold: opts.SoftThreshold,
			Interval:      opts.CleanupInterval,
		}),
	}, nil
}

// PrepareReport describes what the startup passes changed.
type PrepareReport struct {
	TempCleared bool
	Migration   migration.Report
	Reconcile   validator.Report
}

// Prepare provisions the storage directories, clears leftover scratch files,
// migrates legacy state and reconciles items with the disk, in that order.
// Migration and reconciliation failures are logged; only provisioning is
// fatal.
func (a *App) Prepare(ctx context.Context) (PrepareReport, error) {
	var report PrepareReport

	if err := a.Provisioner.EnsureDirectories(ctx); err != nil {
		return report, err
	}

	if err := a.Provisioner.ClearTemp(); err != nil {
		appLog.Warn("failed to clear temp directory: %v", err)
	} else {
		report.TempCleared = true
	}

	mig, err := a.Migration.Run(ctx)
	if err != nil {
		appLog.Error("migration failed: %v", err)
	}
	report.Migration = mig

	rec, err := a.Validator.ReconcileAll(ctx)
	if err != nil {
		appLog.Error("reconciliation failed: %v", err)
	}
	report.Reconcile = rec

	return report, nil
}

// Close stops the scheduler and closes the database.
func (a *App) Close() error {
	a.Cache.Stop()
	return a.DB.Close()
}
