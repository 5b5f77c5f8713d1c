package media

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/mediatypes"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp" // WebP format support
)

// ImageDimensions holds the pixel size and format read from an image header.
type ImageDimensions struct {
	Width  int
	Height int
	Format string
}

// GetImageDimensions reads the image header of path without decoding pixel
// data. Ingestion uses it to reject files that are not images before any
// memory is committed to a full decode.
func GetImageDimensions(path string) (ImageDimensions, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return ImageDimensions{}, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			ingestLog.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return ImageDimensions{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageDimensions{}, fmt.Errorf("image header reports %dx%d", cfg.Width, cfg.Height)
	}
	return ImageDimensions{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// loadBounded decodes path with auto-orientation and downscales it to at most
// maxWidth pixels wide, preserving aspect ratio. libvips is used when
// available since it can shrink during decode.
func loadBounded(path string, maxWidth int) (image.Image, error) {
	if IsVipsAvailable() {
		img, err := loadWithVips(path, maxWidth)
		if err == nil {
			return img, nil
		}
		ingestLog.Debug("vips decode failed for %s, falling back: %v", path, err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	return img, nil
}

// encodeImage writes img to w in the stored format for ext.
func encodeImage(w io.Writer, img image.Image, ext string, quality int) error {
	switch mediatypes.FormatOf(ext) {
	case mediatypes.FormatPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case mediatypes.FormatWebP:
		opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
		if err != nil {
			return fmt.Errorf("failed to configure webp encoder: %w", err)
		}
		return webp.Encode(w, img, opts)
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
}
