package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"wardrobe-storage/internal/filesystem"
)

// ErrAssetUnreadable is returned when an asset cannot be resolved to a
// readable local file.
var ErrAssetUnreadable = errors.New("asset is not readable")

// Asset describes an image handed over by the photo picker. Only URI is
// required; the other fields are hints.
type Asset struct {
	ID       string `json:"id,omitempty"`
	URI      string `json:"uri"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// AssetResolver turns an asset into the absolute path of a readable local file.
type AssetResolver interface {
	ResolveLocal(ctx context.Context, asset Asset) (string, error)
}

// LookupFunc resolves an asset whose URI uses a non-file scheme, for example a
// photo library identifier.
type LookupFunc func(ctx context.Context, asset Asset) (string, error)

// LocalAssetResolver resolves file:// URIs and plain paths directly and
// delegates other schemes to registered lookups.
type LocalAssetResolver struct {
	mu      sync.RWMutex
	lookups map[string]LookupFunc
}

// NewLocalAssetResolver creates a resolver with no scheme lookups.
func NewLocalAssetResolver() *LocalAssetResolver {
	return &LocalAssetResolver{lookups: make(map[string]LookupFunc)}
}

// Register installs a lookup for a URI scheme such as "ph".
func (r *LocalAssetResolver) Register(scheme string, fn LookupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[strings.ToLower(scheme)] = fn
}

// ResolveLocal implements AssetResolver.
func (r *LocalAssetResolver) ResolveLocal(ctx context.Context, asset Asset) (string, error) {
	uri := strings.TrimSpace(asset.URI)
	if uri == "" {
		return "", fmt.Errorf("%w: empty uri", ErrAssetUnreadable)
	}

	localPath := ""
	switch {
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrAssetUnreadable, err)
		}
		localPath = u.Path
	case filepath.IsAbs(uri):
		localPath = uri
	default:
		u, err := url.Parse(uri)
		if err != nil || u.Scheme == "" {
			return "", fmt.Errorf("%w: unsupported uri %q", ErrAssetUnreadable, uri)
		}
		r.mu.RLock()
		fn, ok := r.lookups[strings.ToLower(u.Scheme)]
		r.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("%w: no lookup for scheme %q", ErrAssetUnreadable, u.Scheme)
		}
		p, err := fn(ctx, asset)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrAssetUnreadable, err)
		}
		localPath = p
	}

	if _, ok := filesystem.NonEmptyFileSize(localPath); !ok {
		return "", fmt.Errorf("%w: %s", ErrAssetUnreadable, localPath)
	}
	return localPath, nil
}
