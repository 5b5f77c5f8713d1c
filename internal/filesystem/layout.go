package filesystem

import (
	"path"
	"strings"

	"wardrobe-storage/internal/mediatypes"
)

// StorageDirName is the top-level directory, relative to the storage root,
// that holds every durable image.
const StorageDirName = "permanent_images"

// Layout names the storage subdirectories relative to the storage root.
// Relative paths always use forward slashes so they survive being persisted
// and read back on another platform.
type Layout struct {
	Originals  string
	Thumbnails string
	Temp       string
}

// DefaultLayout returns the current on-disk layout.
func DefaultLayout() Layout {
	return Layout{
		Originals:  path.Join(StorageDirName, "originals"),
		Thumbnails: path.Join(StorageDirName, "thumbnails"),
		Temp:       path.Join(StorageDirName, "temp"),
	}
}

// OriginalPath returns the relative path of an item's original image.
func (l Layout) OriginalPath(itemID, ext string) string {
	return path.Join(l.Originals, itemID+"_original."+strings.TrimPrefix(ext, "."))
}

// ThumbnailPath returns the relative path of an item's JPEG thumbnail.
func (l Layout) ThumbnailPath(itemID string) string {
	return path.Join(l.Thumbnails, itemID+"_thumb.jpg")
}

// Durable reports whether a relative path lives in the originals or
// thumbnails directory.
func (l Layout) Durable(rel string) bool {
	return strings.HasPrefix(rel, l.Originals+"/") || strings.HasPrefix(rel, l.Thumbnails+"/")
}

// InStorage reports whether a relative path lives anywhere under
// StorageDirName.
func InStorage(rel string) bool {
	return strings.HasPrefix(rel, StorageDirName+"/")
}

// ItemIDFromFileName recovers the owning item id from a file written by the
// ingestion pipeline ("{id}_original.ext" or "{id}_thumb.jpg"). Names without an
// image extension are never claimed.
func ItemIDFromFileName(name string) (string, bool) {
	base := path.Base(name)
	if !mediatypes.IsImageFile(base) {
		return "", false
	}
	if i := strings.LastIndex(base, "_original."); i > 0 {
		return base[:i], true
	}
	if i := strings.LastIndex(base, "_thumb."); i > 0 {
		return base[:i], true
	}
	return "", false
}
