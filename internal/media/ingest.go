package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/mediatypes"
	"wardrobe-storage/internal/metrics"
	"wardrobe-storage/internal/registry"
)

var (
	// ErrInvalidItemID is returned for item ids that cannot be used in a file name.
	ErrInvalidItemID = errors.New("invalid item id")
	// ErrImageUndecodable is returned when an asset is readable but is not an
	// image the pipeline can decode.
	ErrImageUndecodable = errors.New("image cannot be decoded")
)

var ingestLog = logging.Component("ingest")

// Options tunes the ingestion pipeline.
type Options struct {
	MaxOriginalWidth int
	OriginalQuality  int
	ThumbnailWidth   int
	ThumbnailQuality int
}

// DefaultOptions returns the standard encoding settings.
func DefaultOptions() Options {
	return Options{
		MaxOriginalWidth: 1920,
		OriginalQuality:  80,
		ThumbnailWidth:   300,
		ThumbnailQuality: 65,
	}
}

// Result describes a stored image. Paths are relative to the storage root.
type Result struct {
	ItemID        string `json:"itemId"`
	OriginalPath  string `json:"originalPath"`
	ThumbnailPath string `json:"thumbnailPath"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FileSize      int64  `json:"fileSize"`
	MimeType      string `json:"mimeType"`
}

// Gate holds back decoding while resources are short.
type Gate interface {
	Wait(ctx context.Context) error
}

// Ingestor copies picked photos into permanent storage.
type Ingestor struct {
	resolver    *filesystem.Resolver
	layout      filesystem.Layout
	provisioner *filesystem.Provisioner
	registry    *registry.Registry
	assets      AssetResolver
	thumbs      *ThumbnailGenerator
	opts        Options
	gate        Gate
	now         func() time.Time

	locksMu sync.Mutex
	locks   map[string]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

// NewIngestor wires the pipeline's collaborators.
func NewIngestor(
	resolver *filesystem.Resolver,
	layout filesystem.Layout,
	provisioner *filesystem.Provisioner,
	reg *registry.Registry,
	assets AssetResolver,
	opts Options,
) *Ingestor {
	return &Ingestor{
		resolver:    resolver,
		layout:      layout,
		provisioner: provisioner,
		registry:    reg,
		assets:      assets,
		thumbs:      NewThumbnailGenerator(opts.ThumbnailWidth, opts.ThumbnailQuality),
		opts:        opts,
		now:         time.Now,
		locks:       make(map[string]*itemLock),
	}
}

// SetGate installs a gate consulted before each decode.
func (in *Ingestor) SetGate(g Gate) {
	in.gate = g
}

// ValidateItemID rejects ids that are empty or could escape the storage
// directories.
func ValidateItemID(itemID string) error {
	if strings.TrimSpace(itemID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidItemID)
	}
	if strings.ContainsAny(itemID, `/\`) || strings.Contains(itemID, "..") || strings.ContainsRune(itemID, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidItemID, itemID)
	}
	return nil
}

// lockItem serializes work on one item id.
func (in *Ingestor) lockItem(itemID string) func() {
	in.locksMu.Lock()
	l, ok := in.locks[itemID]
	if !ok {
		l = &itemLock{}
		in.locks[itemID] = l
	}
	l.refs++
	in.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		in.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(in.locks, itemID)
		}
		in.locksMu.Unlock()
	}
}

// Ingest stores asset as the image of itemID: a bounded, re-encoded original
// and a JPEG thumbnail, recorded in the registry. Files are written before the
// registry entry that references them. On failure every file this call created
// is removed, files it overwrote are restored and the registry is left as it
// was.
func (in *Ingestor) Ingest(ctx context.Context, itemID string, asset Asset) (*Result, error) {
	start := time.Now()
	res, err := in.ingest(ctx, itemID, asset)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IngestionsTotal.WithLabelValues(status).Inc()
	metrics.IngestionDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	return res, err
}

func (in *Ingestor) ingest(ctx context.Context, itemID string, asset Asset) (_ *Result, err error) {
	if err := ValidateItemID(itemID); err != nil {
		return nil, err
	}
	if err := in.provisioner.EnsureDirectories(ctx); err != nil {
		return nil, err
	}

	unlock := in.lockItem(itemID)
	defer unlock()

	src, err := in.assets.ResolveLocal(ctx, asset)
	if err != nil {
		return nil, err
	}

	ext := mediatypes.SafeExtension(asset.FileName, asset.URI, asset.MimeType)
	originalRel := in.layout.OriginalPath(itemID, ext)
	thumbRel := in.layout.ThumbnailPath(itemID)
	originalAbs := in.resolver.ToAbsolute(originalRel)
	thumbAbs := in.resolver.ToAbsolute(thumbRel)
	tempDir := in.resolver.ToAbsolute(in.layout.Temp)

	prev, hadPrev, err := in.registry.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	// Files that did not exist before this call are removed on failure and
	// files it overwrites are put back from their backups.
	var created []string
	backups := make(map[string]string)
	track := func(p string) {
		if _, statErr := os.Stat(p); errors.Is(statErr, os.ErrNotExist) {
			created = append(created, p)
		}
	}
	defer func() {
		if err == nil {
			for _, b := range backups {
				if _, rmErr := filesystem.RemoveFile(b); rmErr != nil {
					ingestLog.Warn("failed to remove backup %s: %v", b, rmErr)
				}
			}
			return
		}
		for _, p := range created {
			if _, rmErr := filesystem.RemoveFile(p); rmErr != nil {
				err = errors.Join(err, rmErr)
			}
		}
		for p, b := range backups {
			if rsErr := filesystem.Restore(b, p); rsErr != nil {
				err = errors.Join(err, rsErr)
			}
		}
	}()

	dims, err := GetImageDimensions(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUndecodable, asset.URI, err)
	}
	ingestLog.Debug("item %s: source %s %dx%d", itemID, dims.Format, dims.Width, dims.Height)

	if in.gate != nil {
		if err := in.gate.Wait(ctx); err != nil {
			return nil, err
		}
	}

	phase := time.Now()
	img, err := loadBounded(src, in.opts.MaxOriginalWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUndecodable, asset.URI, err)
	}
	bounds := img.Bounds()

	for _, p := range []string{originalAbs, thumbAbs} {
		b, perr := filesystem.Preserve(tempDir, p)
		if perr != nil {
			return nil, perr
		}
		if b != "" {
			backups[p] = b
		}
	}

	track(originalAbs)
	if _, err = filesystem.WriteFileAtomic(tempDir, originalAbs, func(w io.Writer) error {
		return encodeImage(w, img, ext, in.opts.OriginalQuality)
	}); err != nil {
		return nil, err
	}
	metrics.IngestionDuration.WithLabelValues("original").Observe(time.Since(phase).Seconds())

	phase = time.Now()
	track(thumbAbs)
	_, fellBack, err := in.thumbs.GenerateOrCopy(originalAbs, thumbAbs, tempDir)
	if err != nil {
		return nil, err
	}
	if fellBack {
		metrics.ThumbnailFallbacks.Inc()
	}
	metrics.IngestionDuration.WithLabelValues("thumbnail").Observe(time.Since(phase).Seconds())

	size, ok := filesystem.NonEmptyFileSize(originalAbs)
	if !ok {
		err = fmt.Errorf("stored original %s is missing or empty", originalRel)
		return nil, err
	}

	entry := registry.Entry{
		ItemID:        itemID,
		OriginalPath:  originalRel,
		ThumbnailPath: thumbRel,
		CreatedAt:     in.now().UTC(),
		FileSize:      size,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		MimeType:      mediatypes.GetMimeType(ext),
		IsRelative:    true,
	}
	phase = time.Now()
	if err = in.registry.Put(ctx, entry); err != nil {
		return nil, err
	}
	metrics.IngestionDuration.WithLabelValues("registry").Observe(time.Since(phase).Seconds())

	if hadPrev {
		in.removeReplaced(prev, entry)
	}

	ingestLog.Info("stored image for item %s (%dx%d, %d bytes, %s)", itemID, entry.Width, entry.Height, size, ext)
	return &Result{
		ItemID:        itemID,
		OriginalPath:  originalRel,
		ThumbnailPath: thumbRel,
		Width:         entry.Width,
		Height:        entry.Height,
		FileSize:      size,
		MimeType:      entry.MimeType,
	}, nil
}

// removeReplaced deletes files of a previous entry that the new entry no
// longer references.
func (in *Ingestor) removeReplaced(prev, cur registry.Entry) {
	for _, p := range []struct{ old, now string }{
		{prev.OriginalPath, cur.OriginalPath},
		{prev.ThumbnailPath, cur.ThumbnailPath},
	} {
		if p.old == "" || p.old == p.now {
			continue
		}
		if _, err := filesystem.RemoveFile(in.resolver.ToAbsolute(p.old)); err != nil {
			ingestLog.Warn("failed to remove replaced file %s: %v", p.old, err)
		}
	}
}

// Remove deletes the registry entry and stored files of itemID and returns
// the bytes freed. An item with nothing stored is not an error.
func (in *Ingestor) Remove(ctx context.Context, itemID string) (int64, error) {
	if err := ValidateItemID(itemID); err != nil {
		return 0, err
	}

	unlock := in.lockItem(itemID)
	defer unlock()

	entry, ok, err := in.registry.Get(ctx, itemID)
	if err != nil {
		return 0, err
	}

	paths := []string{in.layout.ThumbnailPath(itemID)}
	if ok {
		paths = append(paths, entry.OriginalPath, entry.ThumbnailPath)
		if _, err := in.registry.Delete(ctx, itemID); err != nil {
			return 0, err
		}
	}

	var freed int64
	seen := make(map[string]bool)
	for _, rel := range paths {
		if rel == "" || seen[rel] {
			continue
		}
		seen[rel] = true
		n, err := filesystem.RemoveFile(in.resolver.ToAbsolute(rel))
		if err != nil {
			ingestLog.Warn("failed to remove %s: %v", rel, err)
			continue
		}
		freed += n
	}

	ingestLog.Info("removed image for item %s (%d bytes freed)", itemID, freed)
	return freed, nil
}
