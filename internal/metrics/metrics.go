// Package metrics records completion, workflow and retrieval counters on a private
// Prometheus registry. Nothing is served over HTTP; the registry can be dumped to a
// textfile at the end of a command.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeMerged  = "merged"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder owns the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry           *prometheus.Registry
	completionRequests *prometheus.CounterVec
	completionDuration prometheus.Histogram
	workflowSteps      *prometheus.CounterVec
	indexResolutions   *prometheus.CounterVec
	ragQueries         *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		completionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eda_completion_requests_total",
			Help: "Completion requests by outcome.",
		}, []string{"outcome"}),
		completionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eda_completion_duration_seconds",
			Help:    "Completion request latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		workflowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eda_workflow_steps_total",
			Help: "Workflow steps by outcome.",
		}, []string{"outcome"}),
		indexResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eda_rag_index_resolutions_total",
			Help: "Retrieval index resolutions by action (build or load).",
		}, []string{"action"}),
		ragQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eda_rag_queries_total",
			Help: "Retrieval queries by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(
		r.completionRequests,
		r.completionDuration,
		r.workflowSteps,
		r.indexResolutions,
		r.ragQueries,
	)
	return r
}

// Registry exposes the underlying registry for tests and exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordCompletion counts one completion call.
func (r *Recorder) RecordCompletion(duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.completionRequests.WithLabelValues(outcome(err)).Inc()
	r.completionDuration.Observe(duration.Seconds())
}

// RecordStep counts one workflow step by outcome.
func (r *Recorder) RecordStep(result string) {
	if r == nil {
		return
	}
	r.workflowSteps.WithLabelValues(result).Inc()
}

// RecordIndexResolution counts one build or load of a retrieval index.
func (r *Recorder) RecordIndexResolution(action string) {
	if r == nil {
		return
	}
	r.indexResolutions.WithLabelValues(action).Inc()
}

// RecordQuery counts one retrieval query.
func (r *Recorder) RecordQuery(err error) {
	if r == nil {
		return
	}
	r.ragQueries.WithLabelValues(outcome(err)).Inc()
}

// WriteTextfile writes the registry in the Prometheus text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
