// Package media implements the image ingestion pipeline.
//
// An Ingestor takes an Asset from the photo picker, resolves it to a local
// file, and stores:
//   - A re-encoded original, at most MaxOriginalWidth pixels wide, named
//     {itemId}_original.{ext} with ext drawn from a safe whitelist
//   - A JPEG thumbnail named {itemId}_thumb.jpg, falling back to a copy of
//     the original when rendering fails
//
// The resulting relative paths are recorded in the image registry. libvips is
// used for decode-time shrinking when InitVips has been called; otherwise the
// pure Go imaging library does the work.
package media
