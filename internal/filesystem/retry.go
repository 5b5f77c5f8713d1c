package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"wardrobe-storage/internal/logging"
)

var fsLog = logging.Component("filesystem")

// VolumeResolver maps file paths to volume names for metric labels using
// longest-prefix matching on absolute paths.
type VolumeResolver struct {
	mounts []volumeMount // sorted by path length, longest first
}

type volumeMount struct {
	path string // absolute path with trailing slash
	name string
}

// NewVolumeResolver creates a resolver from a map of volume name to path.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, p := range volumes {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if !strings.HasSuffix(abs, "/") {
			abs += "/"
		}
		mounts = append(mounts, volumeMount{path: abs, name: name})
	}
	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})
	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the volume name for a path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}
	for _, m := range vr.mounts {
		if strings.HasPrefix(abs+"/", m.path) {
			return m.name
		}
	}
	return "unknown"
}

var defaultVolumes *VolumeResolver

// SetDefaultVolumeResolver sets the package-level volume resolver.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultVolumes = vr
}

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the defaults used for stale-handle retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isStaleHandle reports whether err is ESTALE. Network and FUSE-backed
// document stores surface it transiently after the backing file is replaced.
func isStaleHandle(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs fn, retrying with exponential backoff while it fails with a
// stale file handle.
func withRetry(op, path string, config RetryConfig, fn func() error) error {
	start := time.Now()
	volume := defaultVolumes.Resolve(path)
	backoff := config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				fsLog.Info("%s succeeded on retry %d for %s", op, attempt, path)
				defaultObserver.ObserveRetrySuccess(op, volume)
			}
			defaultObserver.ObserveOperation(volume, op, time.Since(start).Seconds(), nil)
			return nil
		}

		lastErr = err
		if !isStaleHandle(err) {
			defaultObserver.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
			return err
		}

		defaultObserver.ObserveStaleError(op, volume)
		if attempt < config.MaxRetries {
			defaultObserver.ObserveRetryAttempt(op, volume)
			fsLog.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	fsLog.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	defaultObserver.ObserveRetryFailure(op, volume)
	defaultObserver.ObserveOperation(volume, op, time.Since(start).Seconds(), lastErr)
	return lastErr
}

// StatWithRetry performs os.Stat with retry logic for stale file handles.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, config, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	return info, err
}

// OpenWithRetry performs os.Open with retry logic for stale file handles.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var file *os.File
	err := withRetry("open", path, config, func() error {
		var err error
		file, err = os.Open(path)
		return err
	})
	return file, err
}
