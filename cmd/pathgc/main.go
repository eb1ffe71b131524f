package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"pathgc/internal/config"
	"pathgc/internal/database"
	"pathgc/internal/exitcodes"
	"pathgc/internal/logging"
	"pathgc/internal/metrics"
	"pathgc/internal/params"
	"pathgc/internal/safety"
	"pathgc/internal/step"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run writes the trail to stdout and logs to stderr so the two can be
// captured separately.
func run(args []string, stdout, stderr io.Writer) int {
	// Parse command-line flags
	flags := flag.NewFlagSet("pathgc", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "/etc/pathgc/config.yaml", "Path to configuration file")
	paramsPath := flags.String("params", "", "YAML parameter file persisted between invocations")
	paths := flags.String("paths", "", "Comma separated paths to delete (overrides the parameter file)")
	jobID := flags.String("job-id", "", "Job id the working directory is derived from (overrides the parameter file)")
	stepID := flags.String("step-id", "pathgc", "Step id recorded in history and metrics")
	loggingType := flags.String("logging-type", "", "Log handler: json, text or tint (overrides config)")
	logLevel := flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	showVersion := flags.Bool("version", false, "Print version and exit")
	if err := flags.Parse(args); err != nil {
		return exitcodes.InvalidConfig
	}

	if *showVersion {
		fmt.Fprintln(stdout, "pathgc", version)
		return exitcodes.Success
	}

	// .env may carry AWS credentials and ${VAR}s used by the config
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Error("failed to load .env", "error", err)
		return exitcodes.InvalidConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		return exitcodes.InvalidConfig
	}
	if *loggingType != "" {
		cfg.Logging.Type = *loggingType
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	closer, err := logging.Initialize(cfg.Logging, stderr)
	if err != nil {
		slog.Error("failed to initialize logging", "error", err)
		return exitcodes.InvalidConfig
	}
	defer closer.Close()

	store, err := loadParams(*paramsPath, *paths, *jobID)
	if err != nil {
		slog.Error("failed to prepare parameters", "error", err)
		return exitcodes.InvalidConfig
	}

	opts := []step.Option{step.WithLogger(slog.Default())}
	if cfg.DatabasePath != "" {
		db, err := database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			slog.Error("failed to open history database", "path", cfg.DatabasePath, "error", err)
			return exitcodes.RuntimeError
		}
		defer func() {
			if err := db.Close(); err != nil {
				slog.Error("failed to close history database", "error", err)
			}
		}()
		opts = append(opts, step.WithHistory(db))
	}

	gcStep := step.New(*stepID, store, opts...)
	result := gcStep.Run(context.Background(), &step.ExecutableContext{Config: cfg})

	fmt.Fprint(stdout, result.Output)

	if cfg.Prometheus.Pushgateway != "" {
		pushMetrics(cfg, *stepID, params.JobID(store))
	}

	switch {
	case result.Status == step.StatusSucceeded:
		return exitcodes.Success
	case safety.IsViolation(result.Err):
		return exitcodes.SafetyViolation
	default:
		return exitcodes.RuntimeError
	}
}

// loadParams builds the parameter store, applying command-line overrides.
// A parameter file is written back so a later invocation sees the same
// request.
func loadParams(path, paths, jobID string) (params.Store, error) {
	var (
		store params.Store = params.MapStore{}
		file  *params.FileStore
	)
	if path != "" {
		fstore, err := params.LoadFileStore(path)
		if err != nil {
			return nil, err
		}
		store, file = fstore, fstore
	}

	if paths != "" {
		if err := params.SetDeletePaths(store, params.SplitList(paths)); err != nil {
			return nil, err
		}
	}
	if jobID != "" {
		params.SetJobID(store, jobID)
	}

	if file != nil && (paths != "" || jobID != "") {
		if err := file.Save(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func pushMetrics(cfg *config.Config, stepID, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grouping := map[string]string{"step_id": stepID}
	if jobID != "" {
		grouping["job_id"] = jobID
	}
	if err := metrics.Push(ctx, cfg.Prometheus.Pushgateway, cfg.Prometheus.Job, grouping); err != nil {
		metrics.ErrorsTotal.Inc()
		slog.Warn("failed to push metrics", "error", err)
	}
}
