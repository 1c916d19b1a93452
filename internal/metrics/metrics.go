// Package metrics counts what a scan run did and optionally pushes the
// counters to a Prometheus Pushgateway, since the scanner is a short-lived
// job with nothing to scrape.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "boletin_scanner"

// Metrics holds the run counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Targets        prometheus.Counter
	FetchFailures  *prometheus.CounterVec
	Matches        prometheus.Counter
	GateDecisions  *prometheus.CounterVec
	NotifyFailures prometheus.Counter
	RunDuration    prometheus.Histogram
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Targets: f.NewCounter(prometheus.CounterOpts{
			Name: "boletin_targets_total",
			Help: "Search targets processed.",
		}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boletin_fetch_failures_total",
			Help: "Searches that produced no document, by reason.",
		}, []string{"reason"}),
		Matches: f.NewCounter(prometheus.CounterOpts{
			Name: "boletin_matches_total",
			Help: "Paragraphs that mentioned a target.",
		}),
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boletin_gate_decisions_total",
			Help: "Dedup gate outcomes.",
		}, []string{"outcome"}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "boletin_notify_failures_total",
			Help: "Alerts the notifier could not deliver.",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "boletin_run_duration_seconds",
			Help:    "Wall time of a full scan run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// ObserveRun records how long a run took.
func (m *Metrics) ObserveRun(d time.Duration) {
	m.RunDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends the current values to the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, jobName).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
