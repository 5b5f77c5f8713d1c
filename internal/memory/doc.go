// Package memory keeps image decoding within the container's memory budget.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from MEMORY_LIMIT (typically set from
// the Kubernetes Downward API) and MEMORY_RATIO. A [Monitor] samples the heap
// and pauses ingestion between the critical and high water marks:
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//	ingestor.SetGate(mon)
package memory
