// Package migration upgrades state written by older releases. It runs at
// startup before anything else trusts the image registry.
//
// Passes, in order:
//  1. Registry normalization: absolute entry paths become relative.
//  2. Legacy cache purge: the cache-directory thumbnail maps and trees are
//     deleted.
//  3. Legacy item fields: images an item references inside the storage root
//     but outside permanent_images are copied into the current layout and the
//     field is rewritten to the new relative path.
package migration
