package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"wardrobe-storage/internal/logging"
)

// ErrProvisioning is returned when the storage directories cannot be created.
var ErrProvisioning = errors.New("storage directories unavailable")

var provisionLog = logging.Component("provisioner")

// Provisioner makes sure the storage directory layout exists before any write.
// Concurrent callers share a single in-flight initialization and success is
// remembered for the lifetime of the Provisioner; a failure is not, so the
// next call tries again.
type Provisioner struct {
	resolver *Resolver
	layout   Layout
	group    singleflight.Group
	ready    atomic.Bool
}

// NewProvisioner creates a provisioner for the layout under the resolver's root.
func NewProvisioner(resolver *Resolver, layout Layout) *Provisioner {
	return &Provisioner{resolver: resolver, layout: layout}
}

// Directories returns the absolute directories managed by the provisioner.
func (p *Provisioner) Directories() []string {
	return []string{
		p.resolver.ToAbsolute(p.layout.Originals),
		p.resolver.ToAbsolute(p.layout.Thumbnails),
		p.resolver.ToAbsolute(p.layout.Temp),
	}
}

// EnsureDirectories creates any missing storage directory. It is safe to call
// repeatedly and from many goroutines.
func (p *Provisioner) EnsureDirectories(ctx context.Context) error {
	if p.ready.Load() {
		return nil
	}

	ch := p.group.DoChan("provision", func() (interface{}, error) {
		if p.ready.Load() {
			return nil, nil
		}
		for _, dir := range p.Directories() {
			if err := ensureDir(dir); err != nil {
				return nil, err
			}
		}
		p.ready.Store(true)
		provisionLog.Debug("storage directories ready under %s", p.resolver.Root())
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrProvisioning, res.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forgets a previous successful provisioning so the next call checks
// the disk again.
func (p *Provisioner) Reset() {
	p.ready.Store(false)
}

// ClearTemp empties the scratch directory. Anything left there belongs to an
// ingestion that never finished.
func (p *Provisioner) ClearTemp() error {
	dir := p.resolver.ToAbsolute(p.layout.Temp)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(p.resolver.ToAbsolute(p.layout.Temp + "/" + e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(entries) > 0 {
		provisionLog.Info("cleared %d stale temp entries", len(entries)-len(errs))
	}
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists but is not a directory", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	provisionLog.Debug("created directory %s", path)
	return nil
}
