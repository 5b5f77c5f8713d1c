package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "STORAGE_WORKERS"

// Count returns the number of workers for a task type, scaled from
// GOMAXPROCS (which follows container CPU limits) by multiplier and capped at
// limit. Use 0 for no limit. STORAGE_WORKERS overrides the calculation but
// still respects limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns worker count for CPU-bound tasks such as re-encoding (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks such as directory walks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// ForEach runs fn for every item with at most n concurrent calls. The first
// error cancels the context passed to the remaining calls and is returned.
func ForEach[T any](ctx context.Context, n int, items []T, fn func(ctx context.Context, item T) error) error {
	if n < 1 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
