package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/metrics"
)

// Key is the key-value key the registry document is stored under.
const Key = "permanent_image_registry"

var regLog = logging.Component("registry")

// KV is the key-value store backing the registry. The SQLite database
// implements it.
type KV interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) (bool, error)
}

// Entry records the stored image files of one clothing item. Paths are
// relative to the storage root once IsRelative is set.
type Entry struct {
	ItemID        string    `json:"itemId"`
	OriginalPath  string    `json:"originalPath"`
	ThumbnailPath string    `json:"thumbnailPath"`
	CreatedAt     time.Time `json:"createdAt"`
	FileSize      int64     `json:"fileSize"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	MimeType      string    `json:"mimeType"`
	IsRelative    bool      `json:"isRelative"`
}

// normalize rewrites absolute paths to relative form. It reports whether the
// entry changed.
func (e *Entry) normalize(resolver *filesystem.Resolver) bool {
	if e.IsRelative && isRelativeOrEmpty(e.OriginalPath) && isRelativeOrEmpty(e.ThumbnailPath) {
		return false
	}
	e.OriginalPath = resolver.Normalize(e.OriginalPath)
	e.ThumbnailPath = resolver.Normalize(e.ThumbnailPath)
	e.IsRelative = true
	return true
}

func isRelativeOrEmpty(p string) bool {
	return p == "" || filesystem.IsRelative(p)
}

// Registry is the persisted map from item id to Entry. All operations load
// the whole document, so every method serializes on one mutex.
type Registry struct {
	kv       KV
	resolver *filesystem.Resolver
	mu       sync.Mutex
}

// New creates a registry over kv. Paths read back are normalized against
// resolver.
func New(kv KV, resolver *filesystem.Resolver) *Registry {
	return &Registry{kv: kv, resolver: resolver}
}

// load reads and normalizes the document. The caller must hold r.mu.
func (r *Registry) load(ctx context.Context) (map[string]Entry, error) {
	raw, ok, err := r.kv.GetValue(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read image registry: %w", err)
	}
	entries := make(map[string]Entry)
	if !ok || raw == "" {
		return entries, nil
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		// A corrupt document is treated as empty; the next write replaces it.
		regLog.Error("image registry is corrupt, treating as empty: %v", err)
		return make(map[string]Entry), nil
	}

	changed := 0
	for id, e := range entries {
		if e.ItemID == "" {
			e.ItemID = id
		}
		if e.normalize(r.resolver) {
			changed++
		}
		entries[id] = e
	}
	if changed > 0 {
		regLog.Info("normalized %d registry entries to relative paths", changed)
		metrics.RegistryNormalized.Add(float64(changed))
		if err := r.save(ctx, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// save persists the document. The caller must hold r.mu.
func (r *Registry) save(ctx context.Context, entries map[string]Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode image registry: %w", err)
	}
	if err := r.kv.SetValue(ctx, Key, string(data)); err != nil {
		return fmt.Errorf("failed to write image registry: %w", err)
	}
	metrics.RegistryEntries.Set(float64(len(entries)))
	return nil
}

// Load returns a snapshot of every entry.
func (r *Registry) Load(ctx context.Context) (map[string]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Get returns the entry for itemID.
func (r *Registry) Get(ctx context.Context, itemID string) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := entries[itemID]
	return e, ok, nil
}

// Put stores e, replacing any existing entry for the same item.
func (r *Registry) Put(ctx context.Context, e Entry) error {
	if e.ItemID == "" {
		return fmt.Errorf("registry entry has no item id")
	}
	return r.Update(ctx, func(entries map[string]Entry) (bool, error) {
		e.normalize(r.resolver)
		entries[e.ItemID] = e
		return true, nil
	})
}

// Delete removes the entry for itemID and reports whether it existed.
func (r *Registry) Delete(ctx context.Context, itemID string) (bool, error) {
	n, err := r.DeleteMany(ctx, []string{itemID})
	return n > 0, err
}

// DeleteMany removes every listed entry with a single write and returns how
// many existed.
func (r *Registry) DeleteMany(ctx context.Context, itemIDs []string) (int, error) {
	removed := 0
	err := r.Update(ctx, func(entries map[string]Entry) (bool, error) {
		for _, id := range itemIDs {
			if _, ok := entries[id]; ok {
				delete(entries, id)
				removed++
			}
		}
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Update runs fn on the loaded document and persists it when fn reports a
// change. The registry stays locked for the duration of fn.
func (r *Registry) Update(ctx context.Context, fn func(entries map[string]Entry) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(entries)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.save(ctx, entries)
}

// NormalizeAll rewrites every non-relative entry and returns how many changed.
func (r *Registry) NormalizeAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok, err := r.kv.GetValue(ctx, Key)
	if err != nil {
		return 0, fmt.Errorf("failed to read image registry: %w", err)
	}
	if !ok || raw == "" {
		return 0, nil
	}
	var entries map[string]Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return 0, fmt.Errorf("failed to decode image registry: %w", err)
	}

	changed := 0
	for id, e := range entries {
		if e.normalize(r.resolver) {
			entries[id] = e
			changed++
		}
	}
	if changed == 0 {
		metrics.RegistryEntries.Set(float64(len(entries)))
		return 0, nil
	}
	metrics.RegistryNormalized.Add(float64(changed))
	if err := r.save(ctx, entries); err != nil {
		return 0, err
	}
	return changed, nil
}

// IDs returns the sorted item ids of a snapshot.
func IDs(entries map[string]Entry) []string {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
