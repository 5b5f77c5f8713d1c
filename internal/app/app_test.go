package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"wardrobe-storage/internal/database"
)

func openTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	a, err := Open(context.Background(), Options{
		StorageRoot:  filepath.Join(dir, "documents"),
		CacheDir:     filepath.Join(dir, "cache"),
		DatabasePath: filepath.Join(dir, "wardrobe.db"),
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, dir
}

func TestPrepareProvisionsAndMigrates(t *testing.T) {
	a, dir := openTestApp(t)
	ctx := context.Background()

	// Legacy state: a cache-map key, a legacy cache dir, and an item whose
	// photo sits in the documents root outside permanent_images.
	if err := a.DB.SetValue(ctx, "image_cache_metadata", "{}"); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "cache", "thumbnails"), 0o755); err != nil {
		t.Fatal(err)
	}
	legacy := filepath.Join(a.Resolver.Root(), "photo_1.jpg")
	if err := os.MkdirAll(filepath.Dir(legacy), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(legacy, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.DB.UpsertItem(ctx, database.Item{ID: "tee", OriginalImageURI: legacy}); err != nil {
		t.Fatal(err)
	}

	report, err := a.Prepare(ctx)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	for _, d := range a.Provisioner.Directories() {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("directory %s not provisioned", d)
		}
	}
	if !report.TempCleared {
		t.Error("TempCleared = false")
	}
	if report.Migration.PurgedKeys != 1 || report.Migration.PurgedDirs != 1 || report.Migration.Migrated != 1 {
		t.Errorf("migration report = %+v", report.Migration)
	}
	if report.Reconcile.Updated != 0 || report.Reconcile.Removed != 0 {
		t.Errorf("reconcile report = %+v", report.Reconcile)
	}

	item, err := a.DB.GetItem(ctx, "tee")
	if err != nil {
		t.Fatal(err)
	}
	if item.OriginalImageURI != "permanent_images/originals/tee_original.jpg" {
		t.Errorf("OriginalImageURI = %q", item.OriginalImageURI)
	}
}

func TestOpenAppliesImageOptions(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(context.Background(), Options{
		StorageRoot:  filepath.Join(dir, "documents"),
		DatabasePath: filepath.Join(dir, "wardrobe.db"),
		StorageCap:   1 << 20,
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer a.Close()

	if a.Cache.Cap() != 1<<20 {
		t.Errorf("Cap() = %d, want 1MiB", a.Cache.Cap())
	}
}
