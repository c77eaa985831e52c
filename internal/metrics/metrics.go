// Package metrics exposes Prometheus instrumentation for the codec, the
// post store and the HTTP API, plus a rolling window of compaction ratios.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/postpack/internal/codec"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Codec metrics
	EncodesTotal      *prometheus.CounterVec
	DecodesTotal      *prometheus.CounterVec
	DecodeErrorsTotal *prometheus.CounterVec
	FallbacksTotal    *prometheus.CounterVec
	BytesSavedTotal   prometheus.Counter
	ReductionPercent  prometheus.Histogram

	// Expanded document cache
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Import jobs
	ImportJobsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Window keeps recent reduction percentages for percentile reporting.
	Window *Window
}

// New creates and registers all metrics on a fresh registry. window bounds
// the number of samples kept for percentile snapshots.
func New(window int) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,

		EncodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postpack_encodes_total",
				Help: "Total number of document compactions",
			},
			[]string{"status"},
		),
		DecodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postpack_decodes_total",
				Help: "Total number of compact expansions",
			},
			[]string{"status"},
		),
		DecodeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postpack_decode_errors_total",
				Help: "Expansion failures by kind",
			},
			[]string{"kind"},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postpack_compaction_fallbacks_total",
				Help: "Nodes passed through uncompacted because their shape did not fit",
			},
			[]string{"node_type"},
		),
		BytesSavedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postpack_bytes_saved_total",
				Help: "Bytes saved by compaction",
			},
		),
		ReductionPercent: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "postpack_reduction_percent",
				Help:    "Size reduction of compacted documents in percent",
				Buckets: []float64{-50, 0, 10, 20, 30, 40, 50, 60, 70, 80, 90},
			},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postpack_cache_hits_total",
				Help: "Expanded document cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postpack_cache_misses_total",
				Help: "Expanded document cache misses",
			},
		),

		ImportJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postpack_import_jobs_total",
				Help: "Finished import jobs by outcome",
			},
			[]string{"status"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postpack_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postpack_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		Window: NewWindow(window, 0),
	}

	registry.MustRegister(
		m.EncodesTotal,
		m.DecodesTotal,
		m.DecodeErrorsTotal,
		m.FallbacksTotal,
		m.BytesSavedTotal,
		m.ReductionPercent,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ImportJobsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveEncode records a compaction outcome.
func (m *Metrics) ObserveEncode(stats codec.Stats, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EncodesTotal.WithLabelValues("error").Inc()
		return
	}
	m.EncodesTotal.WithLabelValues("ok").Inc()
	if stats.Reduction > 0 {
		m.BytesSavedTotal.Add(float64(stats.Reduction))
	}
	m.ReductionPercent.Observe(stats.ReductionPercent)
	m.Window.Record(stats.ReductionPercent)
}

// ObserveDecode records an expansion outcome.
func (m *Metrics) ObserveDecode(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.DecodesTotal.WithLabelValues("error").Inc()
		m.DecodeErrorsTotal.WithLabelValues(DecodeErrorKind(err)).Inc()
		return
	}
	m.DecodesTotal.WithLabelValues("ok").Inc()
}

// ObserveFallback counts a node that compaction passed through. It matches
// codec.Config.OnFallback.
func (m *Metrics) ObserveFallback(e *codec.ShapeMismatchError) {
	if m == nil || e == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(e.NodeType).Inc()
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// ObserveJob records a finished import job.
func (m *Metrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.ImportJobsTotal.WithLabelValues(status).Inc()
}

// DecodeErrorKind classifies an expansion error for the kind label.
func DecodeErrorKind(err error) string {
	var malformed *codec.MalformedInputError
	var missing *codec.MissingContextError
	switch {
	case errors.As(err, &missing):
		return "missing_context"
	case errors.Is(err, codec.ErrTooDeep):
		return "too_deep"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "other"
	}
}
