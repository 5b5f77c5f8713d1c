package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/memory"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogMemoryConfig logs how GOMEMLIMIT was derived.
func LogMemoryConfig(r memory.ConfigResult) {
	switch {
	case !r.Configured:
		logging.Info("  Memory limit:    not configured")
	case r.Source == "MEMORY_LIMIT":
		logging.Info("  Memory limit:    %d bytes (%.0f%% of container)", r.GoMemLimit, r.Ratio*100)
	default:
		logging.Info("  Memory limit:    %d bytes (from %s)", r.GoMemLimit, r.Source)
	}
}

// LogImagePipelineInit logs which decoder the ingestion pipeline will use.
func LogImagePipelineInit(vipsAvailable bool, maxWidth, thumbWidth int) {
	section("IMAGE PIPELINE")
	if vipsAvailable {
		logging.Info("  [OK] libvips decode-time shrinking enabled")
	} else {
		logging.Warn("  libvips unavailable, using pure Go decoding")
	}
	logging.Info("  Originals: max %dpx wide, thumbnails: %dpx wide", maxWidth, thumbWidth)
}

// StorageSummary describes the storage state after the startup passes.
type StorageSummary struct {
	Migrated    int
	Normalized  int
	PurgedKeys  int
	PurgedDirs  int
	Flagged     int
	Removed     int
	TempCleared bool
}

// LogStorageInit logs the result of provisioning, migration and
// reconciliation.
func LogStorageInit(s StorageSummary) {
	section("STORAGE INITIALIZATION")
	if s.TempCleared {
		logging.Info("  [OK] Temp directory cleared")
	}
	logging.Info("  Migration:      %d migrated, %d normalized, %d keys / %d dirs purged",
		s.Migrated, s.Normalized, s.PurgedKeys, s.PurgedDirs)
	logging.Info("  Reconciliation: %d updated, %d removed", s.Flagged, s.Removed)
}

// LogSchedulerInit logs the cleanup schedule.
func LogSchedulerInit(interval time.Duration, capBytes string) {
	logging.Info("  Cleanup interval: %v (cap %s)", interval, capBytes)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the request logging switches and, at debug level, the
// registered routes grouped by their first path segment.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	section("HTTP SERVER SETUP")
	logging.Info("  Request logging: static=%s health=%s", onOff(logStaticFiles), onOff(logHealthChecks))

	if !logging.IsDebugEnabled() {
		return
	}
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	byGroup := make(map[string][]RouteInfo)
	for _, r := range routes {
		g := getRouteGroup(r.Path)
		if g == "" {
			g = "root"
		}
		byGroup[g] = append(byGroup[g], r)
	}
	names := make([]string, 0, len(byGroup))
	for g := range byGroup {
		names = append(names, g)
	}
	sort.Strings(names)

	logging.Debug("  %d routes:", len(routes))
	for _, g := range names {
		logging.Debug("  [%s]", g)
		for _, r := range byGroup[g] {
			logging.Debug("    %-6s %s", r.Method, r.Path)
		}
	}
}

// getRouteGroup returns "api/<resource>" for API routes and the first
// path segment otherwise.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		resource, _, _ := strings.Cut(rest, "/")
		return "api/" + resource
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    Storage API:   http://localhost:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func printBanner() {
	banner := `
------------------------------------------------------------
 _      __              __            __
| | /| / /__ ________ _/ /______  ___/ /  ___
| |/ |/ / _ '/ __/ _ '/ / __/ _ \/ _  /  / -_)
|__/|__/\_,_/_/  \_,_/_/_/  \___/\_,_/   \__/   storage
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
	}
}
