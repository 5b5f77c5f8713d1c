// Package handlers provides the HTTP API of the wardrobe image store.
//
// It includes handlers for:
//   - Uploading, serving and deleting an item's image
//   - Storage health reports, cleanup, reconciliation and migration
//   - Health, readiness and version probes
package handlers
