// Package gc removes a job's scratch and output paths once the job no
// longer needs them, and reclaims the job's working directory when that
// leaves it empty.
package gc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"pathgc/internal/fsops"
	"pathgc/internal/params"
)

// WildcardMarker on the end of a path means "this path and its contents".
// It is stripped, never expanded.
const WildcardMarker = "*"

var (
	ErrEmptyPath    = errors.New("empty path")
	ErrRelativePath = errors.New("path is not absolute")
)

// Layout computes a job's working directory.
type Layout interface {
	JobWorkingDir(jobID string) (string, error)
}

// Guard authorizes a recursive delete.
type Guard interface {
	ValidateDeleteTarget(path string) error
}

// Cleaner runs the deletion pass against one filesystem handle. It holds no
// per-run state; Clean can be called repeatedly.
type Cleaner struct {
	fs     fsops.FileSystem
	layout Layout
	guard  Guard
	logger *slog.Logger
}

type Option func(*Cleaner)

// WithGuard checks every delete target before it is removed.
func WithGuard(g Guard) Option {
	return func(c *Cleaner) { c.guard = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cleaner) { c.logger = l }
}

// NewCleaner creates a Cleaner. The filesystem handle is borrowed: the
// cleaner never closes it.
func NewCleaner(fsys fsops.FileSystem, layout Layout, opts ...Option) *Cleaner {
	c := &Cleaner{
		fs:     fsys,
		layout: layout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StripWildcard removes exactly one trailing WildcardMarker.
func StripWildcard(p string) string {
	return strings.TrimSuffix(p, WildcardMarker)
}

// Clean processes req.Paths in order. A non-empty request opens the trail
// with a header naming the filesystem. It stops at the first error and
// returns the trail accumulated up to that point together with the error;
// nothing already deleted is restored.
func (c *Cleaner) Clean(ctx context.Context, req params.Request) (Trail, error) {
	var trail Trail
	if len(req.Paths) == 0 {
		return trail, nil
	}

	c.logger.Info("drop paths on filesystem", "fs", c.fs.URI(), "job_id", req.JobID, "paths", len(req.Paths))
	trail = trail.Append(Entry{Action: ActionHeader, Path: c.fs.URI()})
	for _, raw := range req.Paths {
		var err error
		trail, err = c.cleanPath(ctx, trail, raw, req.JobID)
		if err != nil {
			return trail, err
		}
	}
	return trail, nil
}

func (c *Cleaner) cleanPath(ctx context.Context, trail Trail, raw, jobID string) (Trail, error) {
	p := StripWildcard(raw)
	target := fsops.CleanPath(p)
	if target == "" {
		return trail, fmt.Errorf("%q: %w", raw, ErrEmptyPath)
	}
	// There is no filesystem working directory to resolve against.
	if !fsops.IsAbs(p) {
		return trail, fmt.Errorf("%q: %w", raw, ErrRelativePath)
	}

	exists, err := c.fs.Exists(ctx, target)
	if err != nil {
		return trail, fmt.Errorf("check %s: %w", p, err)
	}
	if exists {
		if err := c.remove(ctx, target); err != nil {
			return trail, err
		}
		trail = c.add(trail, Entry{Action: ActionDropped, Path: p}, jobID)
	} else {
		trail = c.add(trail, Entry{Action: ActionMissing, Path: p}, jobID)
	}

	return c.pruneJobDir(ctx, trail, target, jobID)
}

// pruneJobDir drops the job's working directory when the parent of target
// is left with no entries. Once the known subdirectories of a job are gone
// the job directory is an empty husk.
func (c *Cleaner) pruneJobDir(ctx context.Context, trail Trail, target, jobID string) (Trail, error) {
	parent := path.Dir(target)
	entries, err := c.fs.List(ctx, parent)
	if errors.Is(err, fs.ErrNotExist) {
		return trail, nil
	}
	if err != nil {
		return trail, fmt.Errorf("list %s: %w", parent, err)
	}
	if len(entries) > 0 {
		return trail, nil
	}

	jobDir, err := c.layout.JobWorkingDir(jobID)
	if err != nil {
		return trail, fmt.Errorf("resolve working dir of job %q: %w", jobID, err)
	}
	jobTarget := fsops.CleanPath(jobDir)

	exists, err := c.fs.Exists(ctx, jobTarget)
	if err != nil {
		return trail, fmt.Errorf("check %s: %w", jobDir, err)
	}
	if !exists {
		return trail, nil
	}
	if err := c.remove(ctx, jobTarget); err != nil {
		return trail, err
	}
	return c.add(trail, Entry{Action: ActionPruned, Path: jobDir}, jobID), nil
}

func (c *Cleaner) remove(ctx context.Context, target string) error {
	if c.guard != nil {
		if err := c.guard.ValidateDeleteTarget(target); err != nil {
			return fmt.Errorf("refusing to delete %s: %w", target, err)
		}
	}
	if err := c.fs.RemoveAll(ctx, target); err != nil {
		return fmt.Errorf("delete %s: %w", target, err)
	}
	return nil
}

func (c *Cleaner) add(trail Trail, e Entry, jobID string) Trail {
	c.logger.Debug(e.String(), "action", string(e.Action), "path", e.Path, "job_id", jobID)
	return trail.Append(e)
}
