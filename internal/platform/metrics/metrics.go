package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the capture daemon.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	observationsTotal *prometheus.CounterVec
	readinessChecks   prometheus.Counter
	runsTotal         *prometheus.CounterVec
	segmentsFetched   prometheus.Counter
	segmentBytes      prometheus.Counter
	running           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the daemon.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		observationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_observations_total",
			Help: "Observations handled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		readinessChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_readiness_checks_total",
			Help: "Readiness checks that found the session incomplete",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_runs_total",
			Help: "Completed pipeline runs, by variant and outcome",
		}, []string{"variant", "outcome"}),
		segmentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_segments_fetched_total",
			Help: "Audio segments retrieved successfully",
		}),
		segmentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_segment_bytes_total",
			Help: "Bytes of audio retrieved",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capture_running",
			Help: "1 while a pipeline run is in progress",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.observationsTotal,
		m.readinessChecks,
		m.runsTotal,
		m.segmentsFetched,
		m.segmentBytes,
		m.running,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncObservation counts one handled observation.
func (m *Metrics) IncObservation(kind, outcome string) {
	m.observationsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncReadinessChecks counts one unsuccessful readiness check.
func (m *Metrics) IncReadinessChecks() {
	m.readinessChecks.Inc()
}

// IncRuns counts one finished run.
func (m *Metrics) IncRuns(variant, outcome string) {
	m.runsTotal.WithLabelValues(variant, outcome).Inc()
}

// IncSegmentsFetched counts one fetched segment.
func (m *Metrics) IncSegmentsFetched() {
	m.segmentsFetched.Inc()
}

// AddSegmentBytes adds n fetched bytes.
func (m *Metrics) AddSegmentBytes(n int) {
	m.segmentBytes.Add(float64(n))
}

// SetRunning sets the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
