package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// Resolver converts between storage-root-relative paths and absolute paths.
//
// The absolute prefix of the storage root can change between sessions (the
// platform may relocate the application container on update or reinstall),
// so everything persisted is relative and only resolved at the point of use.
// All methods are pure string transforms.
type Resolver struct {
	prefix string // absolute root with a trailing separator
}

// NewResolver creates a resolver for the given storage root.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %q: %w", root, err)
	}
	prefix := filepath.Clean(abs)
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return &Resolver{prefix: prefix}, nil
}

// Root returns the absolute storage root without a trailing separator.
func (r *Resolver) Root() string {
	if len(r.prefix) == 1 {
		return r.prefix
	}
	return strings.TrimSuffix(r.prefix, string(filepath.Separator))
}

// Prefix returns the absolute storage root with a trailing separator.
func (r *Resolver) Prefix() string {
	return r.prefix
}

// ToAbsolute returns p unchanged when it already starts with the root prefix,
// otherwise the root prefix followed by p. The empty path stays empty.
func (r *Resolver) ToAbsolute(p string) string {
	if p == "" || strings.HasPrefix(p, r.prefix) {
		return p
	}
	return r.prefix + p
}

// ToRelative strips the root prefix from p when present.
func (r *Resolver) ToRelative(p string) string {
	return strings.TrimPrefix(p, r.prefix)
}

// Normalize rewrites any recorded form of a storage path into its relative
// form. Besides the current root prefix it understands file:// URIs and
// absolute paths recorded under a previous root, recognised by the
// StorageDirName anchor. Paths it cannot place are returned unchanged.
func (r *Resolver) Normalize(p string) string {
	p = strings.TrimPrefix(p, fileScheme)
	if strings.HasPrefix(p, r.prefix) {
		return strings.TrimPrefix(p, r.prefix)
	}
	if filepath.IsAbs(p) {
		anchor := "/" + StorageDirName + "/"
		if i := strings.LastIndex(filepath.ToSlash(p), anchor); i >= 0 {
			return filepath.ToSlash(p)[i+1:]
		}
	}
	return p
}

// IsRelative reports whether p is already in persisted (relative) form.
func IsRelative(p string) bool {
	return p != "" && !filepath.IsAbs(p) && !strings.HasPrefix(p, fileScheme)
}

// Locate returns the absolute path for any recorded form of a path. Relative
// and re-rooted storage paths resolve under the current root; absolute paths
// outside it are returned as they are.
func (r *Resolver) Locate(p string) string {
	if p == "" {
		return ""
	}
	n := r.Normalize(p)
	if filepath.IsAbs(n) {
		return n
	}
	return r.ToAbsolute(n)
}
