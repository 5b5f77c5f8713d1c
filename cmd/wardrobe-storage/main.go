package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"wardrobe-storage/internal/app"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/handlers"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/media"
	"wardrobe-storage/internal/memory"
	"wardrobe-storage/internal/metrics"
	"wardrobe-storage/internal/middleware"
	"wardrobe-storage/internal/startup"
)

const (
	shutdownTimeout = 30 * time.Second
	statsInterval   = time.Minute
)

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"storage":  config.StorageRoot,
		"cache":    config.CacheDir,
		"database": config.DatabaseDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable: %v", err)
	}
	defer media.ShutdownVips()
	startup.LogImagePipelineInit(media.IsVipsAvailable(), config.MaxOriginalSize, config.ThumbnailWidth)

	ctx := context.Background()

	dbStart := time.Now()
	a, err := app.Open(ctx, app.Options{
		StorageRoot:      config.StorageRoot,
		CacheDir:         config.CacheDir,
		DatabasePath:     config.DatabasePath,
		StorageCap:       config.StorageCap,
		SoftThreshold:    config.SoftThreshold,
		CleanupInterval:  config.CleanupInterval,
		MaxOriginalWidth: config.MaxOriginalSize,
		ThumbnailWidth:   config.ThumbnailWidth,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize storage: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	memMonitor := memory.NewMonitor(memory.DefaultConfig())
	memMonitor.Start()
	a.Ingestor.SetGate(memMonitor)

	h := handlers.New(handlers.Services{
		DB:        a.DB,
		Resolver:  a.Resolver,
		Layout:    a.Layout,
		Registry:  a.Registry,
		Ingestor:  a.Ingestor,
		Validator: a.Validator,
		Migration: a.Migration,
		Cache:     a.Cache,
	})

	router := mux.NewRouter()
	h.RegisterRoutes(router)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           buildHandler(router, config),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort, h)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Probes answer while startup passes run; /readyz turns 200 afterwards.
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startup.LogFatal("Server error: %v", err)
		}
	}()

	prep, err := a.Prepare(ctx)
	if err != nil {
		startup.LogFatal("Failed to prepare storage: %v", err)
	}
	startup.LogStorageInit(startup.StorageSummary{
		Migrated:    prep.Migration.Migrated,
		Normalized:  prep.Migration.Normalized,
		PurgedKeys:  prep.Migration.PurgedKeys,
		PurgedDirs:  prep.Migration.PurgedDirs,
		Flagged:     prep.Reconcile.Updated,
		Removed:     prep.Reconcile.Removed,
		TempCleared: prep.TempCleared,
	})

	a.Cache.Start()
	startup.LogSchedulerInit(config.CleanupInterval, humanize.Bytes(uint64(config.StorageCap)))

	collector := metrics.NewCollector(a.Cache, statsInterval)
	collector.Start()

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	h.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Stopping background workers")
	collector.Stop()
	memMonitor.Stop()
	startup.LogShutdownStepComplete("Background workers stopped")

	startup.LogShutdownStep("Stopping cleanup scheduler and closing database")
	if err := a.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}

// buildHandler wraps the router in the middleware chain:
// compression(logging(metrics(router))).
func buildHandler(router http.Handler, config *startup.Config) http.Handler {
	handler := middleware.Metrics(middleware.DefaultMetricsConfig())(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)

	return middleware.Compression(middleware.DefaultCompressionConfig())(handler)
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)
	return &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
