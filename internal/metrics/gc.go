package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pathgc/internal/gc"
)

// Path GC metrics
var (
	// PathsDroppedTotal counts requested paths that existed and were deleted
	PathsDroppedTotal prometheus.Counter

	// PathsMissingTotal counts requested paths that were already absent
	PathsMissingTotal prometheus.Counter

	// JobDirsPrunedTotal counts job working directories removed once empty
	JobDirsPrunedTotal prometheus.Counter

	// RunsTotal counts finished runs per terminal status
	RunsTotal *prometheus.CounterVec

	// RunDuration tracks how long a run takes
	RunDuration prometheus.Histogram

	// LastRunTimestamp records Unix timestamp of the last finished run
	LastRunTimestamp prometheus.Gauge

	// ErrorsTotal counts failures outside the cleaner (history, push)
	ErrorsTotal prometheus.Counter
)

func initGCMetrics() {
	PathsDroppedTotal = newPathCounter(
		"paths_dropped_total",
		"Total number of requested paths deleted.",
	)

	PathsMissingTotal = newPathCounter(
		"paths_missing_total",
		"Total number of requested paths that did not exist.",
	)

	JobDirsPrunedTotal = newPathCounter(
		"job_dirs_pruned_total",
		"Total number of empty job working directories deleted.",
	)

	RunsTotal = newStatusCounter(
		"runs_total",
		"Total number of runs by terminal status.",
	)

	RunDuration = newRunHistogram(
		"run_duration_seconds",
		"Duration of path GC runs in seconds.",
	)

	LastRunTimestamp = newGauge(
		"last_run_timestamp",
		"Timestamp of the last run (Unix epoch seconds).",
	)

	ErrorsTotal = newPathCounter(
		"errors_total",
		"Total number of non-fatal errors (history writes, metric pushes).",
	)
}

func registerGCMetrics(reg prometheus.Registerer) {
	reg.MustRegister(PathsDroppedTotal)
	reg.MustRegister(PathsMissingTotal)
	reg.MustRegister(JobDirsPrunedTotal)
	reg.MustRegister(RunsTotal)
	reg.MustRegister(RunDuration)
	reg.MustRegister(LastRunTimestamp)
	reg.MustRegister(ErrorsTotal)
}

// RecordTrail counts the actions of a finished trail
func RecordTrail(t gc.Trail) {
	PathsDroppedTotal.Add(float64(t.Count(gc.ActionDropped)))
	PathsMissingTotal.Add(float64(t.Count(gc.ActionMissing)))
	JobDirsPrunedTotal.Add(float64(t.Count(gc.ActionPruned)))
}

// RecordRun records the outcome and duration of a run and stamps the time
func RecordRun(status string, d time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(d.Seconds())
	LastRunTimestamp.Set(float64(time.Now().Unix()))
}
