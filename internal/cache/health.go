package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"

	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/metrics"
	"wardrobe-storage/internal/workers"
)

// HealthReport is a read-only snapshot of storage usage and consistency.
type HealthReport struct {
	CheckedAt time.Time `json:"checkedAt"`

	TotalBytes     int64   `json:"totalBytes"`
	OriginalBytes  int64   `json:"originalBytes"`
	ThumbnailBytes int64   `json:"thumbnailBytes"`
	OriginalCount  int     `json:"originalCount"`
	ThumbnailCount int     `json:"thumbnailCount"`
	EntryCount     int     `json:"entryCount"`
	CapBytes       int64   `json:"capBytes"`
	UsageRatio     float64 `json:"usageRatio"`

	// Structural issues.
	MissingThumbnails int `json:"missingThumbnails"`
	MissingOriginals  int `json:"missingOriginals"`
	UnreferencedFiles int `json:"unreferencedFiles"`
	OrphanedEntries   int `json:"orphanedEntries"`

	DeviceFreeBytes  uint64 `json:"deviceFreeBytes,omitempty"`
	DeviceTotalBytes uint64 `json:"deviceTotalBytes,omitempty"`

	Score           int      `json:"score"`
	Recommendations []string `json:"recommendations"`
}

// IssueCount returns the number of structural issues found.
func (r HealthReport) IssueCount() int {
	return r.MissingThumbnails + r.MissingOriginals + r.UnreferencedFiles + r.OrphanedEntries
}

// CheckResult is the outcome of HealthCheck.
type CheckResult struct {
	Report             HealthReport `json:"report"`
	EmergencyTriggered bool         `json:"emergencyTriggered"`
	EmergencySucceeded bool         `json:"emergencySucceeded"`
}

// usage returns the bytes used by originals and thumbnails.
func (m *Manager) usage(ctx context.Context) (int64, error) {
	dirs := []string{m.cfg.Layout.Originals, m.cfg.Layout.Thumbnails}
	sizes := make([]int64, len(dirs))
	err := workers.ForEach(ctx, workers.ForIO(len(dirs)), []int{0, 1}, func(_ context.Context, i int) error {
		n, _, err := filesystem.DirUsage(m.cfg.Resolver.ToAbsolute(dirs[i]))
		sizes[i] = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return sizes[0] + sizes[1], nil
}

// Analyze inspects storage without modifying it.
func (m *Manager) Analyze(ctx context.Context) (HealthReport, error) {
	report := HealthReport{CheckedAt: time.Now().UTC(), CapBytes: m.cfg.Cap}

	entries, err := m.cfg.Registry.Load(ctx)
	if err != nil {
		return report, err
	}
	active, err := m.cfg.Items.ActiveItemIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list active items: %w", err)
	}
	report.EntryCount = len(entries)

	dirs := []string{m.cfg.Layout.Originals, m.cfg.Layout.Thumbnails}
	listings := make([][]fileInfo, len(dirs))
	err = workers.ForEach(ctx, workers.ForIO(len(dirs)), []int{0, 1}, func(_ context.Context, i int) error {
		files, err := listFiles(m.cfg.Resolver.ToAbsolute(dirs[i]))
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", dirs[i], err)
		}
		listings[i] = files
		return nil
	})
	if err != nil {
		return report, err
	}

	onDisk := make(map[string]bool)
	for i, files := range listings {
		for _, f := range files {
			onDisk[path.Join(dirs[i], f.name)] = true
			if i == 0 {
				report.OriginalBytes += f.size
				report.OriginalCount++
			} else {
				report.ThumbnailBytes += f.size
				report.ThumbnailCount++
			}
		}
	}
	report.TotalBytes = report.OriginalBytes + report.ThumbnailBytes
	report.UsageRatio = float64(report.TotalBytes) / float64(m.cfg.Cap)

	referenced := make(map[string]bool)
	for id, e := range entries {
		referenced[e.OriginalPath] = true
		referenced[e.ThumbnailPath] = true
		if _, isActive := active[id]; !isActive {
			report.OrphanedEntries++
		}
		if _, ok := filesystem.NonEmptyFileSize(m.cfg.Resolver.Locate(e.OriginalPath)); !ok {
			report.MissingOriginals++
			continue
		}
		if _, ok := filesystem.NonEmptyFileSize(m.cfg.Resolver.Locate(e.ThumbnailPath)); !ok {
			report.MissingThumbnails++
		}
	}
	for rel := range onDisk {
		if referenced[rel] {
			continue
		}
		id, ok := filesystem.ItemIDFromFileName(rel)
		if !ok {
			continue
		}
		if _, isActive := active[id]; !isActive {
			report.UnreferencedFiles++
		}
	}

	if usage, err := disk.UsageWithContext(ctx, m.cfg.Resolver.Root()); err == nil {
		report.DeviceFreeBytes = usage.Free
		report.DeviceTotalBytes = usage.Total
	} else {
		gcLog.Debug("device usage unavailable: %v", err)
	}

	report.Score = score(report, m.cfg.SoftThreshold)
	report.Recommendations = recommendations(report, m.cfg.SoftThreshold)

	metrics.StorageBytes.Set(float64(report.TotalBytes))
	metrics.StorageHealthScore.Set(float64(report.Score))
	return report, nil
}

// score maps a report to 0-100, penalizing usage and structural issues.
func score(r HealthReport, soft float64) int {
	s := 100
	switch {
	case r.UsageRatio > 1:
		s -= 50
	case r.UsageRatio > 0.9:
		s -= 35
	case r.UsageRatio > soft:
		s -= 20
	case r.UsageRatio > soft/2:
		s -= 5
	}

	penalty := 5*r.MissingOriginals + 3*r.MissingThumbnails + 2*(r.UnreferencedFiles+r.OrphanedEntries)
	if penalty > 40 {
		penalty = 40
	}
	s -= penalty

	if r.DeviceTotalBytes > 0 && float64(r.DeviceFreeBytes)/float64(r.DeviceTotalBytes) < 0.05 {
		s -= 10
	}
	if s < 0 {
		s = 0
	}
	return s
}

func recommendations(r HealthReport, soft float64) []string {
	recs := []string{}
	if r.UsageRatio > 1 {
		recs = append(recs, fmt.Sprintf("Image storage uses %s, over the %s limit. Remove unused items.",
			humanize.Bytes(uint64(r.TotalBytes)), humanize.Bytes(uint64(r.CapBytes))))
	} else if r.UsageRatio > soft {
		recs = append(recs, fmt.Sprintf("Image storage is at %.0f%% of its %s limit.",
			r.UsageRatio*100, humanize.Bytes(uint64(r.CapBytes))))
	}
	if r.MissingOriginals > 0 {
		recs = append(recs, fmt.Sprintf("%d stored images are missing on disk. Run a reconcile to flag the affected items.",
			r.MissingOriginals))
	}
	if r.MissingThumbnails > 0 {
		recs = append(recs, fmt.Sprintf("%d images have no thumbnail. Re-add the photos to regenerate them.",
			r.MissingThumbnails))
	}
	if r.UnreferencedFiles+r.OrphanedEntries > 0 {
		recs = append(recs, fmt.Sprintf("%d files and %d records belong to deleted items. Run a cleanup to remove them.",
			r.UnreferencedFiles, r.OrphanedEntries))
	}
	if r.DeviceTotalBytes > 0 && float64(r.DeviceFreeBytes)/float64(r.DeviceTotalBytes) < 0.05 {
		recs = append(recs, fmt.Sprintf("Device storage is nearly full (%s free).", humanize.Bytes(r.DeviceFreeBytes)))
	}
	return recs
}

// HealthCheck analyzes storage and, when usage exceeds the cap, runs an
// emergency cleanup and analyzes again.
func (m *Manager) HealthCheck(ctx context.Context) (CheckResult, error) {
	var result CheckResult

	report, err := m.Analyze(ctx)
	if err != nil {
		return result, err
	}
	result.Report = report
	if report.TotalBytes <= m.cfg.Cap {
		return result, nil
	}

	gcLog.Warn("storage usage %s exceeds cap %s, running emergency cleanup",
		humanize.Bytes(uint64(report.TotalBytes)), humanize.Bytes(uint64(m.cfg.Cap)))
	result.EmergencyTriggered = true
	ok, err := m.EmergencyCleanup(ctx)
	if err != nil {
		return result, err
	}
	result.EmergencySucceeded = ok

	report, err = m.Analyze(ctx)
	if err != nil {
		return result, err
	}
	result.Report = report
	return result, nil
}

// CollectStats implements metrics.StatsProvider.
func (m *Manager) CollectStats(ctx context.Context) (metrics.Stats, error) {
	report, err := m.Analyze(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	total, missing, err := m.cfg.Items.CountItems(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{
		RegistryEntries:   report.EntryCount,
		TotalItems:        total,
		ItemsMissingImage: missing,
		StorageBytes:      report.TotalBytes,
		HealthScore:       report.Score,
	}, nil
}
