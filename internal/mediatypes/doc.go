// Package mediatypes holds the image format whitelist shared by ingestion,
// migration and the HTTP layer.
//
// It has no dependencies beyond the standard library so any package can
// import it without creating cycles.
//
// # Safe Extensions
//
// Originals are only ever stored as jpg, jpeg, png or webp. SafeExtension
// chooses among them from whatever the caller knows about the asset:
//
//	ext := mediatypes.SafeExtension(asset.FileName, asset.URI, asset.MimeType)
//
// Unknown or unsafe inputs (heic, gif, a missing name) resolve to jpg, and
// the ingestion pipeline re-encodes to match.
package mediatypes
