// Package metrics records run and phase statistics in a private Prometheus
// registry that can be written out in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "comfy_test"

// Recorder collects metrics for one invocation. A nil *Recorder ignores all
// observations.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.GaugeVec
	phaseDuration *prometheus.HistogramVec
	phaseFailures *prometheus.CounterVec
	jobPolls      *prometheus.HistogramVec
	lastRun       prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_runs_total",
			Help:      "Platform runs by final outcome.",
		}, []string{"platform", "outcome"}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "platform_run_duration_seconds",
			Help:      "Wall time of the last run per platform.",
		}, []string{"platform"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Time spent per phase.",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"platform", "phase"}),
		phaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_failures_total",
			Help:      "Phases that ended a run.",
		}, []string{"platform", "phase"}),
		jobPolls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_status_polls",
			Help:      "Status polls until a job reached a terminal state or timed out.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"platform", "outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.runs, r.runDuration, r.phaseDuration, r.phaseFailures, r.jobPolls, r.lastRun)
	return r
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObservePhase(platform, phase string, d time.Duration, failed bool) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(platform, phase).Observe(d.Seconds())
	if failed {
		r.phaseFailures.WithLabelValues(platform, phase).Inc()
	}
}

func (r *Recorder) ObserveRun(platform, outcome string, d time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(platform, outcome).Inc()
	r.runDuration.WithLabelValues(platform).Set(d.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

func (r *Recorder) ObserveJob(platform, outcome string, polls int) {
	if r == nil {
		return
	}
	r.jobPolls.WithLabelValues(platform, outcome).Observe(float64(polls))
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
