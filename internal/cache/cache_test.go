package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/registry"
)

type testEnv struct {
	db       *database.Database
	resolver *filesystem.Resolver
	layout   filesystem.Layout
	registry *registry.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	db, err := database.New(ctx, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("database.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	resolver, err := filesystem.NewResolver(filepath.Join(dir, "documents"))
	if err != nil {
		t.Fatalf("NewResolver() failed: %v", err)
	}
	layout := filesystem.DefaultLayout()
	if err := filesystem.NewProvisioner(resolver, layout).EnsureDirectories(ctx); err != nil {
		t.Fatalf("EnsureDirectories() failed: %v", err)
	}
	return &testEnv{db: db, resolver: resolver, layout: layout, registry: registry.New(db, resolver)}
}

func (e *testEnv) manager(capBytes int64) *Manager {
	return New(Config{
		Resolver: e.resolver,
		Layout:   e.layout,
		Registry: e.registry,
		Items:    e.db,
		Cap:      capBytes,
		Interval: 10 * time.Millisecond,
	})
}

// store writes an original and thumbnail of the given sizes for id, records
// the entry and, when active, creates the item.
func (e *testEnv) store(t *testing.T, id string, origSize, thumbSize int, active bool) registry.Entry {
	t.Helper()
	ctx := context.Background()
	entry := registry.Entry{
		ItemID:        id,
		OriginalPath:  e.layout.OriginalPath(id, "jpg"),
		ThumbnailPath: e.layout.ThumbnailPath(id),
		FileSize:      int64(origSize),
		IsRelative:    true,
	}
	e.write(t, entry.OriginalPath, origSize)
	e.write(t, entry.ThumbnailPath, thumbSize)
	if err := e.registry.Put(ctx, entry); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if active {
		if err := e.db.UpsertItem(ctx, database.Item{ID: id}); err != nil {
			t.Fatalf("UpsertItem() failed: %v", err)
		}
	}
	return entry
}

func (e *testEnv) write(t *testing.T, rel string, size int) {
	t.Helper()
	if err := os.WriteFile(e.resolver.ToAbsolute(rel), []byte(strings.Repeat("x", size)), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

func (e *testEnv) exists(rel string) bool {
	_, err := os.Stat(e.resolver.ToAbsolute(rel))
	return err == nil
}

func activeIDs(ids ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestCleanupOrphaned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.manager(0)

	keep := env.store(t, "keep", 100, 10, true)
	gone := env.store(t, "gone", 100, 10, false)
	half := env.store(t, "half", 50, 5, false)

	// Modified out of band: freed bytes come from disk, not the entry.
	env.write(t, gone.OriginalPath, 400)
	// A missing file is not an error.
	if err := os.Remove(env.resolver.ToAbsolute(half.ThumbnailPath)); err != nil {
		t.Fatal(err)
	}

	result, err := m.CleanupOrphaned(ctx, activeIDs("keep"))
	if err != nil {
		t.Fatalf("CleanupOrphaned() failed: %v", err)
	}
	if result.EntriesRemoved != 2 {
		t.Errorf("EntriesRemoved = %d, want 2", result.EntriesRemoved)
	}
	if result.DeletedCount != 3 {
		t.Errorf("DeletedCount = %d, want 3", result.DeletedCount)
	}
	if result.FreedBytes != 400+10+50 {
		t.Errorf("FreedBytes = %d, want %d", result.FreedBytes, 400+10+50)
	}

	all, err := env.registry.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("registry has %d entries, want 1", len(all))
	}
	if !env.exists(keep.OriginalPath) || !env.exists(keep.ThumbnailPath) {
		t.Error("active item files must survive")
	}
	if env.exists(gone.OriginalPath) {
		t.Error("orphan original still on disk")
	}
}

func TestCleanupOrphanedRemovesUnreferencedFiles(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(0)

	env.store(t, "keep", 10, 10, true)
	env.write(t, env.layout.OriginalPath("stray", "png"), 20)
	// Legacy-migrated file of an active item without a registry entry.
	env.write(t, "permanent_images/thumbnails/keep_thumb.png", 5)
	// Not written by the pipeline.
	env.write(t, "permanent_images/originals/notes.txt", 5)

	result, err := m.CleanupOrphaned(context.Background(), activeIDs("keep"))
	if err != nil {
		t.Fatalf("CleanupOrphaned() failed: %v", err)
	}
	if result.DeletedCount != 1 || result.FreedBytes != 20 {
		t.Errorf("result = %+v, want only the stray file removed", result)
	}
	if !env.exists("permanent_images/thumbnails/keep_thumb.png") {
		t.Error("file of an active item must survive")
	}
	if !env.exists("permanent_images/originals/notes.txt") {
		t.Error("foreign file must survive")
	}
}

func TestScheduledCleanupGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store(t, "keep", 100, 10, true)
	entry := env.store(t, "gone", 100, 10, false)

	// 220 bytes of a 10k cap, but an orphaned entry is a structural issue.
	m := env.manager(10_000)
	_, performed, err := m.ScheduledCleanup(ctx)
	if err != nil {
		t.Fatalf("ScheduledCleanup() failed: %v", err)
	}
	if !performed {
		t.Error("cleanup should run when structural issues exist")
	}
	if env.exists(entry.OriginalPath) {
		t.Error("orphan should be removed")
	}

	// Healthy and well under the soft threshold.
	result, performed, err := m.ScheduledCleanup(ctx)
	if err != nil {
		t.Fatalf("ScheduledCleanup() failed: %v", err)
	}
	if performed || result != (CleanupResult{}) {
		t.Errorf("healthy tick = %+v, performed=%v; want no-op", result, performed)
	}
}

func TestScheduledCleanupAboveSoftThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.store(t, "keep", 800, 100, true)

	// 900 of 1000 bytes is above 70%.
	m := env.manager(1000)
	_, performed, err := m.ScheduledCleanup(context.Background())
	if err != nil {
		t.Fatalf("ScheduledCleanup() failed: %v", err)
	}
	if !performed {
		t.Error("cleanup should run above the soft threshold")
	}
}

func TestScheduledCleanupSkippedWhileLocked(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(1)
	env.store(t, "gone", 100, 10, false)

	m.mu.Lock()
	_, performed, err := m.ScheduledCleanup(context.Background())
	m.mu.Unlock()

	if err != nil || performed {
		t.Errorf("ScheduledCleanup() while locked = %v, %v; want skipped", performed, err)
	}
}

func TestEmergencyCleanup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store(t, "keep", 100, 10, true)
	env.store(t, "gone", 5000, 500, false)

	m := env.manager(1000)
	ok, err := m.EmergencyCleanup(ctx)
	if err != nil {
		t.Fatalf("EmergencyCleanup() failed: %v", err)
	}
	if !ok {
		t.Error("usage 110 of 1000 should report success")
	}

	// Active data alone exceeds 90% of the cap.
	env.store(t, "big", 2000, 10, true)
	ok, err = m.EmergencyCleanup(ctx)
	if err != nil {
		t.Fatalf("EmergencyCleanup() failed: %v", err)
	}
	if ok {
		t.Error("usage above 90% of cap should report failure")
	}
}

func TestHealthCheckTriggersEmergency(t *testing.T) {
	env := newTestEnv(t)
	env.store(t, "keep", 100, 10, true)
	env.store(t, "gone", 2000, 100, false)

	m := env.manager(1000)
	result, err := m.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() failed: %v", err)
	}
	if !result.EmergencyTriggered || !result.EmergencySucceeded {
		t.Errorf("result = %+v, want triggered and succeeded", result)
	}
	if result.Report.TotalBytes != 110 {
		t.Errorf("post-cleanup TotalBytes = %d, want 110", result.Report.TotalBytes)
	}

	result, err = m.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() failed: %v", err)
	}
	if result.EmergencyTriggered {
		t.Error("healthy storage must not trigger emergency cleanup")
	}
}

func TestAnalyzeIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ok := env.store(t, "ok", 100, 10, true)
	noThumb := env.store(t, "nothumb", 100, 10, true)
	noOrig := env.store(t, "noorig", 100, 10, true)
	orphan := env.store(t, "orphan", 100, 10, false)
	if err := os.Remove(env.resolver.ToAbsolute(noThumb.ThumbnailPath)); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(env.resolver.ToAbsolute(noOrig.OriginalPath)); err != nil {
		t.Fatal(err)
	}
	env.write(t, env.layout.OriginalPath("stray", "jpg"), 7)

	m := env.manager(1000)
	report, err := m.Analyze(ctx)
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}

	if report.EntryCount != 4 {
		t.Errorf("EntryCount = %d, want 4", report.EntryCount)
	}
	if report.MissingThumbnails != 1 || report.MissingOriginals != 1 || report.UnreferencedFiles != 1 || report.OrphanedEntries != 1 {
		t.Errorf("issues = %d/%d/%d/%d, want 1/1/1/1", report.MissingThumbnails, report.MissingOriginals,
			report.UnreferencedFiles, report.OrphanedEntries)
	}
	if report.OriginalCount != 4 || report.ThumbnailCount != 3 {
		t.Errorf("counts = %d originals, %d thumbnails", report.OriginalCount, report.ThumbnailCount)
	}
	if report.Score >= 100 || report.Score < 0 {
		t.Errorf("Score = %d, want penalized", report.Score)
	}
	if len(report.Recommendations) == 0 {
		t.Error("expected recommendations")
	}

	for _, rel := range []string{ok.OriginalPath, orphan.OriginalPath, env.layout.OriginalPath("stray", "jpg")} {
		if !env.exists(rel) {
			t.Errorf("Analyze() deleted %s", rel)
		}
	}
	all, _ := env.registry.Load(ctx)
	if len(all) != 4 {
		t.Errorf("Analyze() changed the registry: %d entries", len(all))
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		report HealthReport
		want   int
	}{
		{name: "empty", report: HealthReport{}, want: 100},
		{name: "above soft", report: HealthReport{UsageRatio: 0.8}, want: 80},
		{name: "over cap", report: HealthReport{UsageRatio: 1.5}, want: 50},
		{name: "issues capped", report: HealthReport{MissingOriginals: 100}, want: 60},
		{name: "floor", report: HealthReport{UsageRatio: 2, MissingOriginals: 100, DeviceTotalBytes: 100, DeviceFreeBytes: 1}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := score(tt.report, DefaultSoftThreshold); got != tt.want {
				t.Errorf("score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCollectStats(t *testing.T) {
	env := newTestEnv(t)
	env.store(t, "a", 100, 10, true)
	env.store(t, "b", 100, 10, false)

	stats, err := env.manager(0).CollectStats(context.Background())
	if err != nil {
		t.Fatalf("CollectStats() failed: %v", err)
	}
	if stats.RegistryEntries != 2 || stats.TotalItems != 1 || stats.StorageBytes != 220 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env.store(t, "gone", 100, 10, false)
	m := env.manager(0)

	m.Start()
	m.Start()

	deadline := time.Now().Add(2 * time.Second)
	for env.exists(env.layout.OriginalPath("gone", "jpg")) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if env.exists(env.layout.OriginalPath("gone", "jpg")) {
		t.Error("scheduler never cleaned the orphan")
	}
}
