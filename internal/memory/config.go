package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/dustin/go-humanize"

	"wardrobe-storage/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go heap.
// The rest covers libvips buffers and goroutine stacks.
const DefaultMemoryRatio = 0.80

var memLog = logging.Component("memory")

// ConfigResult holds the result of memory configuration
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT", or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO.
// An explicit GOMEMLIMIT wins. MEMORY_LIMIT accepts raw bytes or sizes such
// as "512MiB".
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		memLog.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	limitStr := os.Getenv("MEMORY_LIMIT")
	if limitStr == "" {
		memLog.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left unconfigured")
		return ConfigResult{Source: "none"}
	}

	containerLimit, err := parseLimit(limitStr)
	if err != nil {
		memLog.Warn("failed to parse MEMORY_LIMIT %q: %v", limitStr, err)
		return ConfigResult{Source: "none"}
	}

	ratio := parseRatio(os.Getenv("MEMORY_RATIO"))
	goMemLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	memLog.Info("configured GOMEMLIMIT: %s (%.0f%% of %s)",
		humanize.IBytes(uint64(goMemLimit)), ratio*100, humanize.IBytes(uint64(containerLimit)))

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func parseLimit(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(n), nil
}

func parseRatio(s string) float64 {
	if s == "" {
		return DefaultMemoryRatio
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 || r > 1 {
		memLog.Warn("MEMORY_RATIO %q invalid, using default %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return r
}
