package media

import (
	"fmt"
	"image"
	"io"
	"os"

	"wardrobe-storage/internal/filesystem"

	"github.com/disintegration/imaging"
)

// ThumbnailGenerator renders fixed-width JPEG thumbnails of stored originals.
type ThumbnailGenerator struct {
	width   int
	quality int
}

// NewThumbnailGenerator creates a generator for thumbnails width pixels wide.
func NewThumbnailGenerator(width, quality int) *ThumbnailGenerator {
	return &ThumbnailGenerator{width: width, quality: quality}
}

// Generate writes the thumbnail of src to dst through tempDir. The height
// follows the source aspect ratio. Sources already narrower than the
// thumbnail width are re-encoded at their own size, never enlarged.
func (t *ThumbnailGenerator) Generate(src, dst, tempDir string) (int64, error) {
	img, err := decodeImageFile(src)
	if err != nil {
		return 0, err
	}
	thumb := img
	if img.Bounds().Dx() > t.width {
		thumb = imaging.Resize(img, t.width, 0, imaging.Lanczos)
	}

	return filesystem.WriteFileAtomic(tempDir, dst, func(w io.Writer) error {
		return imaging.Encode(w, thumb, imaging.JPEG, imaging.JPEGQuality(t.quality))
	})
}

// GenerateOrCopy writes a thumbnail and, when rendering fails, copies src to
// dst unchanged so the item still has something to display. fellBack reports
// whether the copy was used.
func (t *ThumbnailGenerator) GenerateOrCopy(src, dst, tempDir string) (size int64, fellBack bool, err error) {
	size, err = t.Generate(src, dst, tempDir)
	if err == nil {
		return size, false, nil
	}
	ingestLog.Warn("thumbnail generation failed for %s, copying original: %v", src, err)

	size, copyErr := filesystem.CopyFile(tempDir, src, dst)
	if copyErr != nil {
		return 0, true, fmt.Errorf("thumbnail fallback failed: %w", copyErr)
	}
	return size, true, nil
}

func decodeImageFile(filePath string) (image.Image, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
	}
	return img, nil
}
