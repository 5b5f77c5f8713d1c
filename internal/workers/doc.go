/*
Package workers sizes worker pools for storage maintenance.

runtime.NumCPU reports host CPUs even inside a CPU-limited container, while
GOMAXPROCS follows the limit (Go 1.19+), so worker counts derive from
GOMAXPROCS:

	workers.ForCPU(8)   // image re-encoding
	workers.ForIO(16)   // directory walks and stats
	workers.ForMixed(8) // read, process, write

Set STORAGE_WORKERS to pin the count, for example on a device with slow
flash where parallel walks hurt more than they help.

ForEach runs a bounded fan-out over a slice with errgroup:

	err := workers.ForEach(ctx, workers.ForIO(8), dirs, func(ctx context.Context, dir string) error {
		return scan(ctx, dir)
	})
*/
package workers
