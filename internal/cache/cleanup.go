package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/dustin/go-humanize"

	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/metrics"
	"wardrobe-storage/internal/registry"
)

// CleanupResult summarizes one orphan cleanup.
type CleanupResult struct {
	DeletedCount   int   `json:"deletedCount"`
	FreedBytes     int64 `json:"freedBytes"`
	EntriesRemoved int   `json:"entriesRemoved"`
}

func (r *CleanupResult) add(freed int64) {
	r.DeletedCount++
	r.FreedBytes += freed
}

// CleanupOrphaned deletes the files and registry entries of every item not in
// active, then deletes unreferenced files on disk that belong to no active
// item. A missing file is not an error; other per-file failures are logged
// and skipped. Waits for any running cleanup to finish.
func (m *Manager) CleanupOrphaned(ctx context.Context, active map[string]struct{}) (CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.cleanupLocked(ctx, active)
	outcome := "performed"
	if err != nil {
		outcome = "error"
	}
	metrics.CleanupRunsTotal.WithLabelValues("manual", outcome).Inc()
	return result, err
}

// EmergencyCleanup runs CleanupOrphaned against the item store's active ids
// without the soft-threshold gate. It reports whether usage ended below
// EmergencyTarget of the cap; false means the caller should warn the user.
func (m *Manager) EmergencyCleanup(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.cfg.Items.ActiveItemIDs(ctx)
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("emergency", "error").Inc()
		return false, fmt.Errorf("failed to list active items: %w", err)
	}
	result, err := m.cleanupLocked(ctx, active)
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("emergency", "error").Inc()
		return false, err
	}
	metrics.CleanupRunsTotal.WithLabelValues("emergency", "performed").Inc()

	used, err := m.usage(ctx)
	if err != nil {
		return false, err
	}
	target := int64(float64(m.cfg.Cap) * m.cfg.EmergencyTarget)
	ok := used < target
	if ok {
		gcLog.Info("emergency cleanup freed %s, usage now %s", humanize.Bytes(uint64(result.FreedBytes)), humanize.Bytes(uint64(used)))
	} else {
		gcLog.Warn("emergency cleanup freed %s but usage is still %s (target %s)",
			humanize.Bytes(uint64(result.FreedBytes)), humanize.Bytes(uint64(used)), humanize.Bytes(uint64(target)))
	}
	return ok, nil
}

// cleanupLocked does the work of CleanupOrphaned. The caller must hold m.mu.
func (m *Manager) cleanupLocked(ctx context.Context, active map[string]struct{}) (CleanupResult, error) {
	var result CleanupResult

	entries, err := m.cfg.Registry.Load(ctx)
	if err != nil {
		return result, err
	}

	var orphans []string
	for _, id := range registry.IDs(entries) {
		if _, ok := active[id]; ok {
			continue
		}
		orphans = append(orphans, id)
		e := entries[id]
		for _, rel := range uniquePaths(e.OriginalPath, e.ThumbnailPath) {
			m.removeInto(&result, rel)
		}
	}

	if len(orphans) > 0 {
		n, err := m.cfg.Registry.DeleteMany(ctx, orphans)
		if err != nil {
			return result, err
		}
		result.EntriesRemoved = n
	}

	// Files on disk whose owner is gone and that nothing references.
	referenced := make(map[string]bool)
	for id, e := range entries {
		if _, ok := active[id]; ok {
			referenced[e.OriginalPath] = true
			referenced[e.ThumbnailPath] = true
		}
	}
	for _, dir := range []string{m.cfg.Layout.Originals, m.cfg.Layout.Thumbnails} {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		files, err := listFiles(m.cfg.Resolver.ToAbsolute(dir))
		if err != nil {
			gcLog.Warn("failed to scan %s: %v", dir, err)
			continue
		}
		for _, f := range files {
			rel := path.Join(dir, f.name)
			id, ok := filesystem.ItemIDFromFileName(f.name)
			if !ok || referenced[rel] {
				continue
			}
			if _, isActive := active[id]; isActive {
				continue
			}
			m.removeInto(&result, rel)
		}
	}

	metrics.CleanupDeletedFiles.Add(float64(result.DeletedCount))
	metrics.CleanupFreedBytes.Add(float64(result.FreedBytes))
	if result.DeletedCount > 0 || result.EntriesRemoved > 0 {
		gcLog.Info("cleanup removed %d entries and %d files, freed %s",
			result.EntriesRemoved, result.DeletedCount, humanize.Bytes(uint64(result.FreedBytes)))
	}
	return result, nil
}

func (m *Manager) removeInto(result *CleanupResult, rel string) {
	abs := m.cfg.Resolver.Locate(rel)
	if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
		return
	}
	freed, err := filesystem.RemoveFile(abs)
	if err != nil {
		gcLog.Warn("failed to delete %s: %v", rel, err)
		return
	}
	result.add(freed)
}

func uniquePaths(paths ...string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type fileInfo struct {
	name string
	size int64
}

// listFiles returns the regular files directly inside dir. A missing
// directory is empty.
func listFiles(dir string) ([]fileInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), size: info.Size()})
	}
	return files, nil
}
