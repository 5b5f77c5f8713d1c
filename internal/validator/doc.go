// Package validator resolves the image to display for a clothing item and
// reconciles item flags with what is actually on disk.
//
// Display resolution tries, in order, the registry thumbnail, the registry
// original, then the item's legacy thumbnail and original fields.
//
// Reconciliation moves each item through present, flagged and removed: a
// missing image is first flagged, and an item whose image is still missing on
// the following pass is deleted.
package validator
