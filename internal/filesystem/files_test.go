package filesystem

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestIsStaleHandle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"ESTALE", syscall.ESTALE, true},
		{"wrapped ESTALE", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"ENOENT", syscall.ENOENT, false},
		{"generic", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStaleHandle(tt.err); got != tt.want {
				t.Errorf("isStaleHandle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNonEmptyFileSize(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.jpg")
	empty := filepath.Join(dir, "empty.jpg")
	if err := os.WriteFile(full, []byte("jpegdata"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if size, ok := NonEmptyFileSize(full); !ok || size != 8 {
		t.Errorf("NonEmptyFileSize(full) = (%d, %v), want (8, true)", size, ok)
	}
	for _, p := range []string{empty, filepath.Join(dir, "missing.jpg"), dir, ""} {
		if _, ok := NonEmptyFileSize(p); ok {
			t.Errorf("NonEmptyFileSize(%q) reported ok", p)
		}
	}
}

func TestRemoveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}

	freed, err := RemoveFile(path)
	if err != nil || freed != 5 {
		t.Fatalf("RemoveFile() = (%d, %v), want (5, nil)", freed, err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("file still exists")
	}

	freed, err = RemoveFile(path)
	if err != nil || freed != 0 {
		t.Errorf("RemoveFile(missing) = (%d, %v), want (0, nil)", freed, err)
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "temp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out.jpg")
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := WriteFileAtomic(tmp, dst, func(w io.Writer) error {
		_, err := io.WriteString(w, "brand new")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if n != 9 {
		t.Errorf("bytes written = %d, want 9", n)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "brand new" {
		t.Errorf("dst content = %q", data)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temp dir not empty after success: %d entries", len(entries))
	}
}

func TestWriteFileAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.jpg")

	_, err := WriteFileAtomic(dir, dst, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("encoder exploded")
	})
	if err == nil || !strings.Contains(err.Error(), "encoder exploded") {
		t.Fatalf("expected encoder error, got %v", err)
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Error("dst should not exist after failure")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial temp file left behind: %d entries", len(entries))
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "dst.jpg")
	if err := os.WriteFile(src, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := CopyFile(dir, src, dst)
	if err != nil || n != 6 {
		t.Fatalf("CopyFile() = (%d, %v)", n, err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "pixels" {
		t.Errorf("copied content = %q", data)
	}

	if _, err := CopyFile(dir, filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("expected error copying a missing file")
	}
}

func TestPreserveAndRestore(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "x_original.jpg")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	backup, err := Preserve(dir, target)
	if err != nil || backup == "" {
		t.Fatalf("Preserve() = %q, %v", backup, err)
	}
	if _, err := WriteFileAtomic(dir, target, func(w io.Writer) error {
		_, err := io.WriteString(w, "new")
		return err
	}); err != nil {
		t.Fatalf("WriteFileAtomic() failed: %v", err)
	}
	if err := Restore(backup, target); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "old" {
		t.Errorf("restored content = %q, want %q", got, "old")
	}
	if _, err := os.Stat(backup); !errors.Is(err, os.ErrNotExist) {
		t.Error("backup should be consumed by Restore")
	}

	if b, err := Preserve(dir, filepath.Join(dir, "missing.jpg")); b != "" || err != nil {
		t.Errorf("Preserve(missing) = %q, %v; want \"\", nil", b, err)
	}
}

func TestDirUsage(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "b"), make([]byte, 20), 0o644)
	_ = os.MkdirAll(filepath.Join(dir, "sub"), 0o755)

	bytes, files, err := DirUsage(dir)
	if err != nil || bytes != 30 || files != 2 {
		t.Errorf("DirUsage() = (%d, %d, %v), want (30, 2, nil)", bytes, files, err)
	}

	bytes, files, err = DirUsage(filepath.Join(dir, "missing"))
	if err != nil || bytes != 0 || files != 0 {
		t.Errorf("DirUsage(missing) = (%d, %d, %v)", bytes, files, err)
	}
}

func TestVolumeResolver(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"storage": "/data/documents",
		"images":  "/data/documents/permanent_images",
		"cache":   "/data/cache",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/data/documents/notes.txt", "storage"},
		{"/data/documents/permanent_images/originals/a.jpg", "images"},
		{"/data/cache/x", "cache"},
		{"/data/cache", "cache"},
		{"/elsewhere", "unknown"},
	}
	for _, tt := range tests {
		if got := vr.Resolve(tt.path); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	var nilResolver *VolumeResolver
	if got := nilResolver.Resolve("/x"); got != "unknown" {
		t.Errorf("nil resolver = %q", got)
	}
}
