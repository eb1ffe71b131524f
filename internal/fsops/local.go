package fsops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// OSFileSystem implements FileSystem on a locally mounted tree (a local
// disk, NFS or a fuse mount of the cluster filesystem).
type OSFileSystem struct {
	// Root is prepended to every path. Empty means the host root.
	Root string
	// StatTimeout bounds existence checks so a stale NFS mount surfaces as
	// an error instead of hanging the run. Zero disables the bound.
	StatTimeout time.Duration
}

// NewOSFileSystem creates a local filesystem handle rooted at root
func NewOSFileSystem(root string, statTimeout time.Duration) *OSFileSystem {
	return &OSFileSystem{Root: root, StatTimeout: statTimeout}
}

func (f *OSFileSystem) URI() string {
	return "file://" + filepath.ToSlash(f.hostPath("/"))
}

func (f *OSFileSystem) Exists(ctx context.Context, p string) (bool, error) {
	_, err := f.lstat(ctx, f.hostPath(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (f *OSFileSystem) RemoveAll(_ context.Context, p string) error {
	return os.RemoveAll(f.hostPath(p))
}

func (f *OSFileSystem) List(_ context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(f.hostPath(p))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (f *OSFileSystem) hostPath(p string) string {
	cleaned := filepath.FromSlash(CleanPath(p))
	if f.Root == "" {
		return cleaned
	}
	return filepath.Join(f.Root, cleaned)
}

// lstat runs os.Lstat, giving up after StatTimeout.
// Common NFS failures (ESTALE, EIO, ENXIO) are reported as ErrStaleMount.
func (f *OSFileSystem) lstat(ctx context.Context, name string) (os.FileInfo, error) {
	if f.StatTimeout <= 0 {
		return classifyStatErr(os.Lstat(name))
	}

	type result struct {
		info os.FileInfo
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := os.Lstat(name)
		done <- result{info: info, err: err}
	}()

	select {
	case r := <-done:
		return classifyStatErr(r.info, r.err)
	case <-time.After(f.StatTimeout):
		return nil, fmt.Errorf("stat %s: no answer after %s: %w", name, f.StatTimeout, ErrStaleMount)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func classifyStatErr(info os.FileInfo, err error) (os.FileInfo, error) {
	if err == nil {
		return info, nil
	}
	if errors.Is(err, syscall.ESTALE) || errors.Is(err, syscall.EIO) || errors.Is(err, syscall.ENXIO) {
		return nil, fmt.Errorf("%w: %w", ErrStaleMount, err)
	}
	return nil, err
}
