package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	jobStartsTotal  *prometheus.CounterVec
	jobCancelsTotal *prometheus.CounterVec
	observersGauge  prometheus.Gauge
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "tt",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "tt",
			Subsystem:   "http",
			Name:        "requests_in_flight",
			Help:        "HTTP requests currently being served.",
			ConstLabels: constLabels,
		},
	)
	jobStartsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "http",
			Name:        "job_starts_total",
			Help:        "Job start requests by kind and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"kind", "outcome"},
	)
	jobCancelsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "http",
			Name:        "job_cancels_total",
			Help:        "Job cancel requests by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	observersGauge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "tt",
			Subsystem:   "http",
			Name:        "progress_observers",
			Help:        "Connected progress websocket observers.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		requestTotal, requestDuration, requestInFlight,
		jobStartsTotal, jobCancelsTotal, observersGauge,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		jobStartsTotal:  jobStartsTotal,
		jobCancelsTotal: jobCancelsTotal,
		observersGauge:  observersGauge,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RequestStarted() {
	m.requestInFlight.Inc()
}

func (m *HTTPServerMetrics) RequestFinished() {
	m.requestInFlight.Dec()
}

func (m *HTTPServerMetrics) ObserveJobStart(kind, outcome string) {
	m.jobStartsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *HTTPServerMetrics) ObserveJobCancel(outcome string) {
	m.jobCancelsTotal.WithLabelValues(outcome).Inc()
}

func (m *HTTPServerMetrics) ObserverConnected() {
	m.observersGauge.Inc()
}

func (m *HTTPServerMetrics) ObserverDisconnected() {
	m.observersGauge.Dec()
}
