package fsops

import (
	"context"
	"errors"
	"path"
	"strings"
)

// FileSystem abstracts the distributed filesystem a cleanup pass works on.
// Enables swapping the local backend for an object store, and an in-memory
// tree in tests.
//
// Paths are slash separated and absolute. A leading scheme://authority
// prefix is accepted and ignored, so the paths computed upstream can be
// passed through unchanged.
type FileSystem interface {
	// URI identifies the filesystem in logs.
	URI() string
	// Exists reports whether path is present. An absent path is not an error.
	Exists(ctx context.Context, path string) (bool, error)
	// RemoveAll deletes path and everything below it.
	RemoveAll(ctx context.Context, path string) error
	// List returns the entry names directly under path. A missing directory
	// is reported with an error wrapping fs.ErrNotExist.
	List(ctx context.Context, path string) ([]string, error)
}

// ErrStaleMount is returned when a stat does not answer within the
// configured timeout or fails with a stale-handle errno.
var ErrStaleMount = errors.New("stale mount")

// CleanPath strips an optional scheme://authority prefix and returns the
// cleaned absolute slash path. The empty string stays empty.
func CleanPath(p string) string {
	p = stripScheme(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsAbs reports whether p, once its scheme prefix is removed, is absolute.
func IsAbs(p string) bool {
	return strings.HasPrefix(stripScheme(p), "/")
}

func stripScheme(p string) string {
	i := strings.Index(p, "://")
	if i < 0 {
		return p
	}
	rest := p[i+len("://"):]
	j := strings.IndexByte(rest, '/')
	if j < 0 {
		return "/"
	}
	return rest[j:]
}
