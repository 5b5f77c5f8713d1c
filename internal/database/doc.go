// Package database provides SQLite persistence for the wardrobe storage
// service.
//
// It stores:
//   - Serialized key-value records in kv_store, most importantly the image
//     registry document and the legacy cache maps read by migration
//   - Clothing items, including the legacy image URI fields and the
//     is_image_missing flag maintained by reconciliation
//
// The database runs in WAL mode. Schema creation and column migrations are
// idempotent and run on every open.
package database
