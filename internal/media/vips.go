package media

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"wardrobe-storage/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

var vipsLog = logging.Component("vips")

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes libvips. Call once at startup; without it ingestion
// decodes with the pure Go path.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging before Startup so LOG_LEVEL applies to it.
	vipsLogLevel := vips.LogLevelWarning
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLogLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLogLevel = vips.LogLevelCritical
	}
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch {
		case level <= vips.LogLevelCritical:
			vipsLog.Error("[%s] %s", domain, msg)
		case level == vips.LogLevelWarning:
			vipsLog.Warn("[%s] %s", domain, msg)
		default:
			vipsLog.Debug("[%s] %s", domain, msg)
		}
	}, vipsLogLevel)

	// Photos are ingested one at a time; keep the footprint small.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	vipsLog.Info("libvips initialized (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		vipsLog.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized.
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// loadWithVips decodes path with libvips, shrinking to at most maxWidth
// pixels wide during decode. The result is auto-oriented.
func loadWithVips(path string, maxWidth int) (image.Image, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips auto-rotate failed: %w", err)
	}

	w, h := ref.Width(), ref.Height()
	if maxWidth > 0 && w > maxWidth {
		targetHeight := h * maxWidth / w
		vipsLog.Debug("shrinking %s from %dx%d to %dx%d", filepath.Base(path), w, h, maxWidth, targetHeight)
		if err := ref.Thumbnail(maxWidth, targetHeight, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	// Hand the pixels back as an image.Image through a lossless intermediate
	// when there is an alpha channel, otherwise a high quality JPEG.
	var buf []byte
	if ref.HasAlpha() {
		buf, _, err = ref.ExportPng(vips.NewPngExportParams())
	} else {
		buf, _, err = ref.ExportJpeg(&vips.JpegExportParams{Quality: 95, OptimizeCoding: true})
	}
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vips output: %w", err)
	}
	return img, nil
}
