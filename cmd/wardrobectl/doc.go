// Command wardrobectl runs the storage maintenance operations of the
// wardrobe image store from the command line, against the same directories
// and database the server uses.
//
// Usage:
//
//	wardrobectl [--root DIR] [--db DIR] [--cache-dir DIR] [--cap SIZE] <command>
//
// Commands:
//
//	migrate     normalize the registry, purge legacy caches, migrate legacy images
//	reconcile   flag or remove items whose image is missing
//	cleanup     delete images of items that no longer exist
//	health      report storage usage; cleans up when over the cap
//	ingest      store a photo as the image of an item
//	resolve     print the path of the image displayed for an item
//
// Flag defaults come from STORAGE_ROOT, DATABASE_DIR, CACHE_DIR and
// STORAGE_CAP. Reports are printed as JSON.
package main
