/*
Package filesystem owns the on-disk side of permanent image storage.

# Path resolution

Every path the service persists is relative to the storage root. The
[Resolver] converts to absolute paths only at the point of use, because the
absolute prefix of the root can change between sessions:

	r, _ := filesystem.NewResolver("/data/documents")
	abs := r.ToAbsolute("permanent_images/originals/abc_original.jpg")
	rel := r.ToRelative(abs) // "permanent_images/originals/abc_original.jpg"

[Resolver.Normalize] also accepts file:// URIs and absolute paths recorded
under a previous root and returns the relative form.

# Layout and provisioning

[Layout] names the originals, thumbnails and temp directories. The
[Provisioner] creates them once per process and shares one in-flight
initialization between concurrent callers.

# File operations

Writes go through [WriteFileAtomic] (temp file plus rename). Stat and open
retry on stale file handles with exponential backoff (3 attempts, 50ms to
500ms) and report through the [Observer] interface.
*/
package filesystem
