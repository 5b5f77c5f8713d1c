package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"wardrobe-storage/internal/cache"
	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/media"
	"wardrobe-storage/internal/migration"
	"wardrobe-storage/internal/registry"
	"wardrobe-storage/internal/startup"
	"wardrobe-storage/internal/validator"
)

type testEnv struct {
	h      *Handlers
	router *mux.Router
	db     *database.Database
	svc    Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := database.New(ctx, filepath.Join(dir, "wardrobe.db"))
	if err != nil {
		t.Fatalf("database.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	resolver, err := filesystem.NewResolver(filepath.Join(dir, "documents"))
	if err != nil {
		t.Fatalf("NewResolver() failed: %v", err)
	}
	layout := filesystem.DefaultLayout()
	prov := filesystem.NewProvisioner(resolver, layout)
	if err := prov.EnsureDirectories(ctx); err != nil {
		t.Fatalf("EnsureDirectories() failed: %v", err)
	}
	reg := registry.New(db, resolver)

	svc := Services{
		DB:        db,
		Resolver:  resolver,
		Layout:    layout,
		Registry:  reg,
		Ingestor:  media.NewIngestor(resolver, layout, prov, reg, media.NewLocalAssetResolver(), media.DefaultOptions()),
		Validator: validator.New(resolver, layout, reg, db),
		Migration: migration.New(migration.Config{
			Resolver:    resolver,
			Layout:      layout,
			Provisioner: prov,
			Registry:    reg,
			KV:          db,
			Items:       db,
			CacheDir:    filepath.Join(dir, "cache"),
		}),
		Cache: cache.New(cache.Config{
			Resolver: resolver,
			Layout:   layout,
			Registry: reg,
			Items:    db,
		}),
	}

	h := New(svc)
	h.SetReady(true)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return &testEnv{h: h, router: router, db: db, svc: svc}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode() failed: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, itemID, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if data != nil {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/items/"+itemID+"/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return v
}

func TestUploadServeDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, uploadRequest(t, "shirt-1", "shirt.jpg", jpegBytes(t, 400, 200),
		map[string]string{"name": "Blue shirt", "category": "tops"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}
	res := decode[media.Result](t, w)
	if res.OriginalPath != "permanent_images/originals/shirt-1_original.jpg" {
		t.Errorf("OriginalPath = %q", res.OriginalPath)
	}
	if filepath.IsAbs(res.ThumbnailPath) {
		t.Errorf("ThumbnailPath %q should be relative", res.ThumbnailPath)
	}

	item, err := env.db.GetItem(ctx, "shirt-1")
	if err != nil {
		t.Fatalf("item not created: %v", err)
	}
	if item.Name != "Blue shirt" || item.OriginalImageURI != res.OriginalPath || item.IsImageMissing {
		t.Errorf("item = %+v", item)
	}

	tempDir := env.svc.Resolver.ToAbsolute(env.svc.Layout.Temp)
	if entries, _ := os.ReadDir(tempDir); len(entries) != 0 {
		t.Errorf("staged upload left in temp: %d files", len(entries))
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/items/shirt-1/image", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	thumb, _, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	if err != nil || thumb.Width != 300 {
		t.Errorf("served image width = %d (%v), want thumbnail width 300", thumb.Width, err)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/items/shirt-1/image?variant=original", http.NoBody))
	orig, _, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	if err != nil || orig.Width != 400 {
		t.Errorf("original width = %d (%v), want 400", orig.Width, err)
	}

	flagged := true
	if err := env.db.UpdateImageState(ctx, "shirt-1", database.ImageStatePatch{IsImageMissing: &flagged}); err != nil {
		t.Fatal(err)
	}
	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/items/shirt-1/image", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if freed := decode[map[string]interface{}](t, w)["freedBytes"].(float64); freed <= 0 {
		t.Errorf("freedBytes = %v, want > 0", freed)
	}

	item, _ = env.db.GetItem(ctx, "shirt-1")
	if item.OriginalImageURI != "" || item.ThumbnailImageURI != "" || item.IsImageMissing {
		t.Errorf("image fields not cleared: %+v", item)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/items/shirt-1/image", http.NoBody))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestUploadUpdatesExistingItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.db.UpsertItem(ctx, database.Item{ID: "coat", Name: "Coat", IsImageMissing: true}); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, uploadRequest(t, "coat", "coat.jpg", jpegBytes(t, 64, 64), map[string]string{"name": "ignored"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}

	item, err := env.db.GetItem(ctx, "coat")
	if err != nil {
		t.Fatal(err)
	}
	if item.Name != "Coat" || item.IsImageMissing || item.ThumbnailImageURI == "" {
		t.Errorf("item = %+v", item)
	}
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"missing file field", uploadRequest(t, "a", "", nil, nil), http.StatusBadRequest},
		{"invalid item id", uploadRequest(t, "bad..id", "a.jpg", jpegBytes(t, 8, 8), nil), http.StatusBadRequest},
		{"not an image", uploadRequest(t, "a", "a.jpg", []byte("plain text"), nil), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, tt.req); w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}

	if all, _ := env.svc.Registry.Load(context.Background()); len(all) != 0 {
		t.Errorf("registry has %d entries after failed uploads", len(all))
	}
}

func TestUploadStorageFailureIsServerError(t *testing.T) {
	env := newTestEnv(t)

	originals := env.svc.Resolver.ToAbsolute(env.svc.Layout.Originals)
	if err := os.RemoveAll(originals); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(originals, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, uploadRequest(t, "jacket", "jacket.jpg", jpegBytes(t, 32, 32), nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusInternalServerError, w.Body.String())
	}
	if _, ok, _ := env.svc.Registry.Get(context.Background(), "jacket"); ok {
		t.Error("registry entry written for failed upload")
	}
}

func TestStorageHealthIsCached(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/storage/health", http.NoBody))
	if w.Code != http.StatusOK || w.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first request status=%d cache=%q", w.Code, w.Header().Get("X-Cache"))
	}
	report := decode[cache.HealthReport](t, w)
	if report.Score < 90 || report.CapBytes != cache.DefaultCap {
		t.Errorf("report = %+v", report)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/storage/health", http.NoBody))
	if w.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second request cache = %q, want HIT", w.Header().Get("X-Cache"))
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/storage/health?refresh=true", http.NoBody))
	if w.Header().Get("X-Cache") != "MISS" {
		t.Errorf("refresh cache = %q, want MISS", w.Header().Get("X-Cache"))
	}

	env.do(t, uploadRequest(t, "hat", "hat.jpg", jpegBytes(t, 32, 32), nil))
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/storage/health", http.NoBody))
	if w.Header().Get("X-Cache") != "MISS" {
		t.Error("upload did not invalidate the cached report")
	}
	if got := decode[cache.HealthReport](t, w); got.EntryCount != 1 {
		t.Errorf("EntryCount = %d, want 1", got.EntryCount)
	}
}

func TestCleanupRemovesImagesOfDeletedItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.do(t, uploadRequest(t, "keep", "keep.jpg", jpegBytes(t, 32, 32), nil))
	env.do(t, uploadRequest(t, "gone", "gone.jpg", jpegBytes(t, 32, 32), nil))
	if err := env.db.RemoveItem(ctx, "gone"); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/storage/cleanup", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", w.Code)
	}
	resp := decode[CleanupResponse](t, w)
	if !resp.Succeeded || resp.Report == nil || resp.Report.EntryCount != 1 {
		t.Errorf("cleanup response = %+v", resp)
	}
	if _, ok, _ := env.svc.Registry.Get(ctx, "gone"); ok {
		t.Error("entry of deleted item survived cleanup")
	}
}

func TestReconcileFlagsMissingImages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.do(t, uploadRequest(t, "scarf", "scarf.jpg", jpegBytes(t, 32, 32), nil))
	entry, _, _ := env.svc.Registry.Get(ctx, "scarf")
	for _, rel := range []string{entry.OriginalPath, entry.ThumbnailPath} {
		os.Remove(env.svc.Resolver.ToAbsolute(rel))
	}

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/storage/reconcile", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d", w.Code)
	}
	if got := decode[validator.Report](t, w); got.Updated != 1 {
		t.Errorf("report = %+v, want 1 updated", got)
	}

	// The endpoint resets the once-per-session guard, so a second call
	// advances the item to removal.
	w = env.do(t, httptest.NewRequest(http.MethodPost, "/api/storage/reconcile", http.NoBody))
	if got := decode[validator.Report](t, w); got.Removed != 1 {
		t.Errorf("second report = %+v, want 1 removed", got)
	}
}

func TestMigrateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.db.SetValue(ctx, "thumbnail_cache_map", "{}"); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/storage/migrate", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("migrate status = %d", w.Code)
	}
	if got := decode[migration.Report](t, w); got.PurgedKeys != 1 {
		t.Errorf("report = %+v, want 1 purged key", got)
	}
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path   string
		ready  bool
		status int
	}{
		{"/health", true, http.StatusOK},
		{"/health", false, http.StatusServiceUnavailable},
		{"/readyz", true, http.StatusOK},
		{"/readyz", false, http.StatusServiceUnavailable},
		{"/livez", false, http.StatusOK},
	}
	for _, tt := range tests {
		env.h.SetReady(tt.ready)
		w := env.do(t, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
		if w.Code != tt.status {
			t.Errorf("%s ready=%v: status = %d, want %d", tt.path, tt.ready, w.Code, tt.status)
		}
	}

	env.h.SetReady(true)
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if got := decode[HealthResponse](t, w); got.Status != statusHealthy || got.Version != startup.Version {
		t.Errorf("health = %+v", got)
	}
}

func TestGetVersion(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/version", http.NoBody))
	if w.Code != http.StatusOK || w.Header().Get("Cache-Control") != "no-cache" {
		t.Fatalf("status=%d cache-control=%q", w.Code, w.Header().Get("Cache-Control"))
	}
	if got := decode[startup.BuildInfo](t, w); got != startup.GetBuildInfo() {
		t.Errorf("version = %+v", got)
	}
}
