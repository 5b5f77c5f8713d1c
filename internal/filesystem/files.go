package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// NonEmptyFileSize returns the size of a regular, non-empty file. A missing,
// empty or unreadable file reports ok=false.
func NonEmptyFileSize(path string) (size int64, ok bool) {
	if path == "" {
		return 0, false
	}
	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return 0, false
	}
	return info.Size(), true
}

// RemoveFile deletes a file and returns its size measured just before the
// delete. A missing file is not an error and frees nothing.
func RemoveFile(path string) (int64, error) {
	if path == "" {
		return 0, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return info.Size(), nil
}

// WriteFileAtomic streams write into a uniquely named file under tempDir and
// renames it onto dst, so readers never observe a half-written file and an
// existing dst is replaced in one step. Returns the bytes written.
func WriteFileAtomic(tempDir, dst string, write func(io.Writer) error) (int64, error) {
	tmpPath := filepath.Join(tempDir, uuid.NewString()+".part")
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	cw := &countingWriter{w: f}
	werr := write(cw)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmpPath, dst)
	}
	if werr != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			werr = errors.Join(werr, rmErr)
		}
		return 0, fmt.Errorf("failed to write %s: %w", dst, werr)
	}
	return cw.n, nil
}

// CopyFile copies src onto dst through tempDir with the same atomic
// replacement as WriteFileAtomic.
func CopyFile(tempDir, src, dst string) (int64, error) {
	in, err := OpenWithRetry(src, DefaultRetryConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	return WriteFileAtomic(tempDir, dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Preserve keeps a copy of path under tempDir so a later replacement can be
// rolled back with Restore. It hard-links when possible and copies otherwise.
// A missing path returns "" and no error.
func Preserve(tempDir, path string) (string, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}
	backup := filepath.Join(tempDir, uuid.NewString()+".bak")
	if err := os.Link(path, backup); err == nil {
		return backup, nil
	}
	if _, err := CopyFile(tempDir, path, backup); err != nil {
		return "", fmt.Errorf("failed to preserve %s: %w", path, err)
	}
	return backup, nil
}

// Restore moves a backup made by Preserve back onto path.
func Restore(backup, path string) error {
	if err := os.Rename(backup, path); err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	return nil
}

// DirUsage sums the sizes of the regular files directly inside dir. A missing
// directory counts as empty.
func DirUsage(dir string) (bytes int64, files int, err error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		bytes += info.Size()
		files++
	}
	return bytes, files, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
