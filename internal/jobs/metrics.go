// Package jobmetrics instruments queued notification deliveries.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery statuses recorded on lako_jobs_total.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailure = "failure"
	StatusDropped = "dropped"
)

const unknownKind = "unknown"

// Metrics exposes Prometheus collectors for delivery jobs.
type Metrics struct {
	runs         *prometheus.CounterVec
	sinkFailures *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, or the default
// Prometheus registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker follows one delivery attempt.
type Tracker struct {
	metrics *Metrics
	job     string
	kind    string
	failed  []string
	start   time.Time
}

// Track starts a tracker for job. The notification kind is unknown until
// SetKind is called.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, kind: unknownKind, start: time.Now()}
}

// SetKind labels the attempt with the notification kind.
func (t *Tracker) SetKind(kind string) {
	if t != nil && kind != "" {
		t.kind = kind
	}
}

// SinkFailed records sinks that rejected the notification in this attempt.
func (t *Tracker) SinkFailed(sinks ...string) {
	if t != nil {
		t.failed = append(t.failed, sinks...)
	}
}

// End records duration and outcome and returns err untouched. A nil err with
// failed sinks counts as a partial delivery; SkipRetry errors count as
// dropped.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := StatusSuccess
	switch {
	case errors.Is(err, asynq.SkipRetry):
		status = StatusDropped
	case err != nil:
		status = StatusFailure
	case len(t.failed) > 0:
		status = StatusPartial
	}
	for _, sink := range t.failed {
		t.metrics.sinkFailures.WithLabelValues(t.job, sink).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, t.kind, status).Inc()
	t.metrics.duration.WithLabelValues(t.job, t.kind).Observe(time.Since(t.start).Seconds())
	return err
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lako_jobs_total",
		Help: "Delivery job executions by job, notification kind and status.",
	}, []string{"job", "kind", "status"})
	sinkFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lako_job_sink_failures_total",
		Help: "Sink rejections seen while running delivery jobs.",
	}, []string{"job", "sink"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lako_job_duration_seconds",
		Help:    "Duration in seconds of delivery job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job", "kind"})
	registerer.MustRegister(runs, sinkFailures, duration)
	return &Metrics{runs: runs, sinkFailures: sinkFailures, duration: duration}
}
