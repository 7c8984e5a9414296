// Package metrics exposes Prometheus collectors for update cycles,
// retrieval calls and sinks.
//
// All methods are nil-safe so components can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lenedastat"

// Outcome labels
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeEmpty   = "empty"
	OutcomeSkipped = "skipped"
)

// Metrics holds all collectors of the daemon.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal     *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	lastSuccess     *prometheus.GaugeVec
	chunksTotal     *prometheus.CounterVec
	chunkDuration   *prometheus.HistogramVec
	samplesFetched  *prometheus.CounterVec
	samplesDropped  *prometheus.CounterVec
	samplesExcluded *prometheus.CounterVec
	recordsEmitted  *prometheus.CounterVec
	sinkErrors      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	lastPeriodStart *prometheus.GaugeVec
	lastSum         *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg
// creates a dedicated registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Update cycles by view and outcome.",
		}, []string{"view", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one view of an update cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"view"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle per view.",
		}, []string{"view"}),
		chunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_fetches_total",
			Help:      "Retrieval calls by feed and outcome.",
		}, []string{"feed", "outcome"}),
		chunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_fetch_duration_seconds",
			Help:      "Duration of one retrieval call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feed"}),
		samplesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_fetched_total",
			Help:      "Valid samples returned by the API.",
		}, []string{"feed"}),
		samplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "API records dropped because of a bad timestamp or value.",
		}, []string{"feed"}),
		samplesExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_excluded_total",
			Help:      "Samples excluded because their period is already persisted.",
		}, []string{"view"}),
		recordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Statistic records written to the store.",
		}, []string{"view"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed emits to archive and publishers.",
		}, []string{"sink"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		lastPeriodStart: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_period_start_seconds",
			Help:      "Unix time of the newest persisted period per series.",
		}, []string{"series_id"}),
		lastSum: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sum",
			Help:      "Newest running total per cumulative series.",
		}, []string{"series_id"}),
	}

	reg.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.lastSuccess,
		m.chunksTotal,
		m.chunkDuration,
		m.samplesFetched,
		m.samplesDropped,
		m.samplesExcluded,
		m.recordsEmitted,
		m.sinkErrors,
		m.httpRequests,
		m.httpDuration,
		m.lastPeriodStart,
		m.lastSum,
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Cycle records the outcome of one view of a cycle.
func (m *Metrics) Cycle(view, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(view, outcome).Inc()
	m.cycleDuration.WithLabelValues(view).Observe(d.Seconds())
	if outcome == OutcomeOK || outcome == OutcomeEmpty {
		m.lastSuccess.WithLabelValues(view).SetToCurrentTime()
	}
}

// Chunk records one retrieval call.
func (m *Metrics) Chunk(feed string, ok bool, fetched, dropped int, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	m.chunksTotal.WithLabelValues(feed, outcome).Inc()
	m.chunkDuration.WithLabelValues(feed).Observe(d.Seconds())
	m.samplesFetched.WithLabelValues(feed).Add(float64(fetched))
	m.samplesDropped.WithLabelValues(feed).Add(float64(dropped))
}

// Excluded records samples dropped by the resume filter.
func (m *Metrics) Excluded(view string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.samplesExcluded.WithLabelValues(view).Add(float64(n))
}

// Emitted records a successful store write.
func (m *Metrics) Emitted(view, seriesID string, records int, lastPeriod time.Time, lastSum *float64) {
	if m == nil {
		return
	}
	m.recordsEmitted.WithLabelValues(view).Add(float64(records))
	if records > 0 {
		m.lastPeriodStart.WithLabelValues(seriesID).Set(float64(lastPeriod.Unix()))
	}
	if lastSum != nil {
		m.lastSum.WithLabelValues(seriesID).Set(*lastSum)
	}
}

// SinkError records a failed emit.
func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and duration for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
