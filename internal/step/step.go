// Package step adapts one invocation of the job framework into one path GC
// run and one result.
package step

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pathgc/internal/config"
	"pathgc/internal/database"
	"pathgc/internal/fsops"
	"pathgc/internal/gc"
	"pathgc/internal/metrics"
	"pathgc/internal/params"
	"pathgc/internal/safety"
)

type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusErrored   Status = "ERRORED"
)

var ErrNoConfig = errors.New("executable context has no configuration")

// Result is the terminal outcome of a run. Output is the rendered trail.
type Result struct {
	RunID  string
	Status Status
	Output string
	Trail  gc.Trail
	// Err is the error that ended an ERRORED run; its message is the last
	// trail entry.
	Err error
}

// ExecutableContext is what the framework hands to Run.
type ExecutableContext struct {
	Config *config.Config
	// FileSystem, when set, is used instead of opening one from Config.
	// The step never closes it.
	FileSystem fsops.FileSystem
}

// History stores finished runs.
type History interface {
	RecordRun(run database.RunRecord, trail gc.Trail) error
}

// GCStep deletes the paths set on it and prunes the job's working directory
// once it is left empty. Parameters live in the framework's store so they
// survive between SetDeletePaths/SetJobID and Run.
type GCStep struct {
	id      string
	store   params.Store
	logger  *slog.Logger
	history History
	now     func() time.Time
}

type Option func(*GCStep)

func WithLogger(l *slog.Logger) Option {
	return func(s *GCStep) { s.logger = l }
}

// WithHistory records every run, successful or not.
func WithHistory(h History) Option {
	return func(s *GCStep) { s.history = h }
}

func New(id string, store params.Store, opts ...Option) *GCStep {
	metrics.Init()

	s := &GCStep{
		id:     id,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GCStep) ID() string { return s.id }

// SetDeletePaths stores the candidate paths. It must be called before Run.
func (s *GCStep) SetDeletePaths(paths []string) error {
	return params.SetDeletePaths(s.store, paths)
}

// SetJobID stores the id the job working directory is derived from.
func (s *GCStep) SetJobID(jobID string) {
	params.SetJobID(s.store, jobID)
}

// Run performs the deletion pass. Deletions are irreversible and are not
// rolled back when a later operation fails.
func (s *GCStep) Run(ctx context.Context, ec *ExecutableContext) Result {
	runID := uuid.NewString()
	started := s.now()
	req := params.DecodeRequest(s.store)
	logger := s.logger.With("step_id", s.id, "run_id", runID, "job_id", req.JobID)

	logger.Info("path gc started", "paths", len(req.Paths))

	fsURI, trail, err := s.clean(ctx, ec, req, logger)

	status := StatusSucceeded
	if err != nil {
		status = StatusErrored
		trail = trail.Append(gc.Entry{Action: gc.ActionFailed, Message: err.Error()})
		logger.Error("path gc finished with error", "error", err)
	}

	finished := s.now()
	result := Result{
		RunID:  runID,
		Status: status,
		Output: trail.String(),
		Trail:  trail,
		Err:    err,
	}

	metrics.RecordTrail(trail)
	metrics.RecordRun(string(status), finished.Sub(started))
	s.record(result, req, fsURI, started, finished, logger)

	logger.Info("path gc finished",
		"status", status,
		"dropped", trail.Count(gc.ActionDropped),
		"missing", trail.Count(gc.ActionMissing),
		"pruned", trail.Count(gc.ActionPruned),
		"duration", finished.Sub(started),
	)
	return result
}

func (s *GCStep) clean(ctx context.Context, ec *ExecutableContext, req params.Request, logger *slog.Logger) (string, gc.Trail, error) {
	if ec == nil || ec.Config == nil {
		return "", nil, ErrNoConfig
	}
	cfg := ec.Config

	fsys := ec.FileSystem
	if fsys == nil {
		var err error
		if fsys, err = OpenFileSystem(ctx, cfg); err != nil {
			return "", nil, err
		}
	}

	layout, err := cfg.Layout()
	if err != nil {
		return fsys.URI(), nil, err
	}
	guard := safety.NewValidator(
		cfg.Safety.AllowedRoots,
		cfg.Safety.ProtectedPaths,
		cfg.Safety.ProtectedPatterns,
		[]string{cfg.WorkingDir},
	)

	cleaner := gc.NewCleaner(fsys, layout, gc.WithGuard(guard), gc.WithLogger(logger))
	trail, err := cleaner.Clean(ctx, req)
	return fsys.URI(), trail, err
}

func (s *GCStep) record(r Result, req params.Request, fsURI string, started, finished time.Time, logger *slog.Logger) {
	if s.history == nil {
		return
	}

	run := database.RunRecord{
		RunID:      r.RunID,
		StepID:     s.id,
		JobID:      req.JobID,
		Status:     string(r.Status),
		FileSystem: fsURI,
		StartedAt:  started,
		FinishedAt: finished,
		Output:     r.Output,
	}
	if r.Err != nil {
		run.ErrorMessage = r.Err.Error()
	}

	// The deletions already happened; a lost history row does not change
	// the run's outcome.
	if err := s.history.RecordRun(run, r.Trail); err != nil {
		metrics.ErrorsTotal.Inc()
		logger.Warn("failed to record run history", "error", err)
	}
}

// OpenFileSystem creates the filesystem handle described by cfg.
func OpenFileSystem(ctx context.Context, cfg *config.Config) (fsops.FileSystem, error) {
	switch cfg.FileSystem.Type {
	case config.FileSystemLocal, "":
		return fsops.NewOSFileSystem(cfg.FileSystem.Root, cfg.StatTimeout()), nil
	case config.FileSystemS3:
		fsys, err := fsops.OpenS3(ctx, cfg.S3Options())
		if err != nil {
			return nil, fmt.Errorf("open s3 filesystem: %w", err)
		}
		return fsys, nil
	default:
		return nil, fmt.Errorf("unknown filesystem type %q", cfg.FileSystem.Type)
	}
}
