// Package main provides the entry point for the wardrobe image storage
// service.
//
// The service keeps the photos of clothing items under the app's documents
// directory: a bounded, re-encoded original and a thumbnail per item, tracked
// by an image registry stored in SQLite next to the items themselves.
//
// # Application Lifecycle
//
//  1. Memory configuration: GOMEMLIMIT from MEMORY_LIMIT / MEMORY_RATIO
//  2. Configuration loading: environment variables, directory checks
//  3. libvips initialization (optional, falls back to pure Go decoding)
//  4. Storage services: database, resolver, provisioner, registry,
//     ingestor, validator, migration engine and cache manager
//  5. HTTP servers start; /readyz reports not ready
//  6. Startup passes: provision directories, clear temp, migrate legacy
//     state, reconcile items with the disk
//  7. Cleanup scheduler and metrics collector start; /readyz turns ready
//  8. Graceful shutdown on SIGINT/SIGTERM
//
// # HTTP Server
//
// The main server (PORT, default 8080) serves the item image API and the
// storage maintenance endpoints. The metrics server (METRICS_PORT, default
// 9090) serves /metrics and a liveness probe.
//
// # Build Requirements
//
// CGO is required for SQLite and libvips:
//
//	go build -o wardrobe-storage ./cmd/wardrobe-storage
//
// See [wardrobe-storage/internal/startup] for the full list of environment
// variables.
package main
