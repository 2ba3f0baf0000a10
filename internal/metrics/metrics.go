// Package metrics counts simulation activity on a private Prometheus
// registry. A CLI run can dump the registry to a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qualsim"

// Recorder holds the simulation metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	// nodes counts tree nodes by status (ok, rejected, pending).
	nodes *prometheus.CounterVec
	// branches counts branch fan-outs by source.
	branches *prometheus.CounterVec
	// rejections counts rejected applies by action.
	rejections *prometheus.CounterVec
	// fanout is the number of children per branch.
	fanout prometheus.Histogram
	// runs counts finished runs by outcome (complete, truncated).
	runs *prometheus.CounterVec
	// duration is the wall time of a run.
	duration prometheus.Histogram
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		nodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "nodes_total",
			Help:      "Tree nodes created, by status",
		}, []string{"status"}),
		branches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "branches_total",
			Help:      "Branch fan-outs, by source of the indeterminacy",
		}, []string{"source"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "rejections_total",
			Help:      "Rejected action applications, by action",
		}, []string{"action"}),
		fanout: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "branching_factor",
			Help:      "Children created per branch",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 16},
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "Finished simulation runs, by outcome",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a simulation run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

// Registry exposes the private registry, e.g. for testutil.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// NodeAdded counts one tree node.
func (r *Recorder) NodeAdded(status string) {
	if r == nil {
		return
	}
	r.nodes.WithLabelValues(status).Inc()
}

// Branched records a fan-out into n children.
func (r *Recorder) Branched(source string, n int) {
	if r == nil {
		return
	}
	r.branches.WithLabelValues(source).Inc()
	r.fanout.Observe(float64(n))
}

// Rejected counts a rejected application of action.
func (r *Recorder) Rejected(action string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(action).Inc()
}

// RunFinished records the outcome and duration of a run.
func (r *Recorder) RunFinished(truncated bool, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "complete"
	if truncated {
		outcome = "truncated"
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.duration.Observe(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
