package migration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/registry"
)

type testEnv struct {
	db       *database.Database
	resolver *filesystem.Resolver
	cfg      Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("database.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	resolver, err := filesystem.NewResolver(filepath.Join(dir, "documents"))
	if err != nil {
		t.Fatalf("NewResolver() failed: %v", err)
	}
	layout := filesystem.DefaultLayout()

	return &testEnv{
		db:       db,
		resolver: resolver,
		cfg: Config{
			Resolver:    resolver,
			Layout:      layout,
			Provisioner: filesystem.NewProvisioner(resolver, layout),
			Registry:    registry.New(db, resolver),
			KV:          db,
			Items:       db,
			CacheDir:    filepath.Join(dir, "cache"),
		},
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// seedLegacyState writes state as an older release would have left it.
func (e *testEnv) seedLegacyState(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	legacy := map[string]registry.Entry{
		"abs": {
			ItemID:        "abs",
			OriginalPath:  "/var/containers/OLD/Documents/permanent_images/originals/abs_original.jpg",
			ThumbnailPath: "/var/containers/OLD/Documents/permanent_images/thumbnails/abs_thumb.jpg",
		},
	}
	data, _ := json.Marshal(legacy)
	if err := e.db.SetValue(ctx, registry.Key, string(data)); err != nil {
		t.Fatal(err)
	}

	for _, key := range LegacyCacheKeys {
		if err := e.db.SetValue(ctx, key, `{"x":"y"}`); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(e.cfg.CacheDir, "thumbnails", "a.jpg"), "cached")
	writeFile(t, filepath.Join(e.cfg.CacheDir, "image_cache", "b.jpg"), "cached")
	writeFile(t, filepath.Join(e.cfg.CacheDir, "keep", "c.jpg"), "not ours")

	writeFile(t, filepath.Join(e.resolver.Root(), "images", "shirt.png"), "png-bytes")
	writeFile(t, filepath.Join(e.resolver.Root(), "images", "shirt_small.jpg"), "jpg-bytes")
	items := []database.Item{
		{
			ID:                "shirt",
			OriginalImageURI:  "file://" + filepath.Join(e.resolver.Root(), "images", "shirt.png"),
			ThumbnailImageURI: filepath.Join(e.resolver.Root(), "images", "shirt_small.jpg"),
		},
		{
			ID:               "current",
			OriginalImageURI: filepath.Join(e.resolver.Root(), "permanent_images", "originals", "current_original.jpg"),
		},
		{ID: "remote", OriginalImageURI: "ph://ABC-123"},
		{ID: "plain"},
	}
	for _, it := range items {
		if err := e.db.UpsertItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunMigratesLegacyState(t *testing.T) {
	env := newTestEnv(t)
	env.seedLegacyState(t)
	ctx := context.Background()

	report, err := New(env.cfg).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if report.PurgedKeys != len(LegacyCacheKeys) {
		t.Errorf("PurgedKeys = %d, want %d", report.PurgedKeys, len(LegacyCacheKeys))
	}
	if report.PurgedDirs != 2 {
		t.Errorf("PurgedDirs = %d, want 2", report.PurgedDirs)
	}
	if report.Migrated != 2 || report.Total() != 2 {
		t.Errorf("Migrated = %d, want 2", report.Migrated)
	}
	// One registry entry plus the "current" item's absolute field.
	if report.Normalized != 2 {
		t.Errorf("Normalized = %d, want 2", report.Normalized)
	}
	if report.Failed != 0 {
		t.Errorf("Failed = %d, want 0", report.Failed)
	}

	for _, key := range LegacyCacheKeys {
		if _, ok, _ := env.db.GetValue(ctx, key); ok {
			t.Errorf("legacy key %s still present", key)
		}
	}
	if _, err := os.Stat(filepath.Join(env.cfg.CacheDir, "thumbnails")); !os.IsNotExist(err) {
		t.Error("legacy thumbnails dir still present")
	}
	if _, err := os.Stat(filepath.Join(env.cfg.CacheDir, "keep", "c.jpg")); err != nil {
		t.Error("unrelated cache content must survive")
	}

	entry, ok, err := env.cfg.Registry.Get(ctx, "abs")
	if err != nil || !ok {
		t.Fatalf("registry entry lost: %v", err)
	}
	if entry.OriginalPath != "permanent_images/originals/abs_original.jpg" || !entry.IsRelative {
		t.Errorf("registry entry not normalized: %+v", entry)
	}

	shirt, err := env.db.GetItem(ctx, "shirt")
	if err != nil {
		t.Fatal(err)
	}
	if shirt.OriginalImageURI != "permanent_images/originals/shirt_original.png" {
		t.Errorf("shirt original = %q", shirt.OriginalImageURI)
	}
	if shirt.ThumbnailImageURI != "permanent_images/thumbnails/shirt_thumb.jpg" {
		t.Errorf("shirt thumbnail = %q", shirt.ThumbnailImageURI)
	}
	got, err := os.ReadFile(env.resolver.ToAbsolute(shirt.OriginalImageURI))
	if err != nil || string(got) != "png-bytes" {
		t.Errorf("copied original = %q, %v", got, err)
	}

	current, _ := env.db.GetItem(ctx, "current")
	if current.OriginalImageURI != "permanent_images/originals/current_original.jpg" {
		t.Errorf("current original = %q, want relative", current.OriginalImageURI)
	}
	remote, _ := env.db.GetItem(ctx, "remote")
	if remote.OriginalImageURI != "ph://ABC-123" {
		t.Errorf("remote original = %q, must be left alone", remote.OriginalImageURI)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedLegacyState(t)
	ctx := context.Background()

	if _, err := New(env.cfg).Run(ctx); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}

	// A fresh engine over the same state models the next app session.
	report, err := New(env.cfg).Run(ctx)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if report != (Report{}) {
		t.Errorf("second run report = %+v, want zero", report)
	}
}

func TestRunOncePerSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedLegacyState(t)
	ctx := context.Background()
	engine := New(env.cfg)

	var wg sync.WaitGroup
	reports := make([]Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := engine.Run(ctx)
			if err != nil {
				t.Errorf("Run() failed: %v", err)
			}
			reports[i] = r
		}(i)
	}
	wg.Wait()

	purged := 0
	for _, r := range reports {
		purged += r.PurgedKeys
	}
	// Callers either share the single run or see a zero report.
	if purged == 0 || purged%len(LegacyCacheKeys) != 0 {
		t.Errorf("PurgedKeys across callers = %d", purged)
	}

	r, err := engine.Run(ctx)
	if err != nil || r != (Report{}) {
		t.Errorf("Run() after completion = %+v, %v; want zero", r, err)
	}

	engine.Reset()
	if _, err := engine.Run(ctx); err != nil {
		t.Errorf("Run() after Reset failed: %v", err)
	}
}

func TestRunToleratesBrokenItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(env.resolver.Root(), "images", "good.jpg"), "ok")
	items := []database.Item{
		{ID: "broken", OriginalImageURI: filepath.Join(env.resolver.Root(), "images", "gone.jpg")},
		{ID: "good", OriginalImageURI: filepath.Join(env.resolver.Root(), "images", "good.jpg")},
	}
	for _, it := range items {
		if err := env.db.UpsertItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	report, err := New(env.cfg).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Failed != 1 || report.Migrated != 1 {
		t.Errorf("report = %+v, want 1 failed and 1 migrated", report)
	}

	broken, _ := env.db.GetItem(ctx, "broken")
	if broken.OriginalImageURI != items[0].OriginalImageURI {
		t.Errorf("broken item field rewritten to %q", broken.OriginalImageURI)
	}
}
