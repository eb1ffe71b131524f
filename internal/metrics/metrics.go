package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	initOnce sync.Once

	// Registry holds every pathgc metric. A run is a short-lived process, so
	// the registry is pushed to a Pushgateway rather than scraped.
	Registry = prometheus.NewRegistry()
)

// Init initializes all metrics and registers them with Registry
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initGCMetrics()
		registerGCMetrics(Registry)

		// Present in every push, even when a run never reaches the cleaner
		LastRunTimestamp.Set(0)
	})
}

// Push sends the current state of Registry to the Pushgateway at url.
// grouping adds labels that distinguish this push from other step
// instances of the same job.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	pusher := push.New(url, job).Gatherer(Registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
