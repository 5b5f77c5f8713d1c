package database

import (
	"errors"
	"time"
)

// ErrItemNotFound is returned when an item id does not exist in the store.
var ErrItemNotFound = errors.New("clothing item not found")

// Item is a clothing item as stored in the item store. Only the image fields
// are managed by the storage service; the rest belongs to the application.
type Item struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	OriginalImageURI  string    `json:"originalImageUri,omitempty"`
	ThumbnailImageURI string    `json:"thumbnailImageUri,omitempty"`
	IsImageMissing    bool      `json:"isImageMissing"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ImageStatePatch updates the image-related fields of an item. Nil fields are
// left unchanged.
type ImageStatePatch struct {
	OriginalImageURI  *string
	ThumbnailImageURI *string
	IsImageMissing    *bool
}

// Empty reports whether the patch changes nothing.
func (p ImageStatePatch) Empty() bool {
	return p.OriginalImageURI == nil && p.ThumbnailImageURI == nil && p.IsImageMissing == nil
}
