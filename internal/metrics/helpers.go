package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric built here, e.g. pathgc_runs_total.
const Namespace = "pathgc"

// RunDurationBuckets covers a run from a few local stats (10ms) to a large
// object store prefix deleted in 1000-key batches (10min).
var RunDurationBuckets = []float64{0.01, 0.05, 0.25, 1, 5, 30, 120, 600}

// newRunHistogram builds pathgc_<name> with RunDurationBuckets.
func newRunHistogram(name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
		Buckets:   RunDurationBuckets,
	})
}

// newPathCounter builds pathgc_<name>; used for per-action path counts
// and the non-fatal error count.
func newPathCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	})
}

func newStatusCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, []string{"status"})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	})
}
