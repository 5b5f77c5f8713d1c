// Package registry maintains the permanent image registry: a single JSON
// document in the key-value store mapping clothing item ids to the stored
// original and thumbnail files.
//
// Paths are persisted relative to the storage root. Entries written by older
// releases with absolute paths are normalized whenever the document is read,
// and the normalized form is written back.
package registry
