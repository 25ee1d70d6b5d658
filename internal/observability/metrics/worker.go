package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobsInFlight    prometheus.Gauge
	pagesTotal      *prometheus.CounterVec
	rateLimitWaits  prometheus.Counter
	ticketsImported prometheus.Counter
	ticketsAnalyzed *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "worker",
			Name:        "jobs_total",
			Help:        "Finished jobs by kind and terminal status.",
			ConstLabels: serviceLabel,
		},
		[]string{"kind", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "tt",
			Subsystem:   "worker",
			Name:        "job_duration_seconds",
			Help:        "Job run duration in seconds by kind.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			ConstLabels: serviceLabel,
		},
		[]string{"kind"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "tt",
			Subsystem:   "worker",
			Name:        "jobs_in_flight",
			Help:        "Number of jobs currently running.",
			ConstLabels: serviceLabel,
		},
	)
	pagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "worker",
			Name:        "import_pages_total",
			Help:        "Remote pages fetched by outcome.",
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)
	rateLimitWaits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "worker",
			Name:        "import_rate_limit_waits_total",
			Help:        "Backoff waits caused by remote rate limiting.",
			ConstLabels: serviceLabel,
		},
	)
	ticketsImported := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "worker",
			Name:        "tickets_imported_total",
			Help:        "Tickets persisted by the import worker.",
			ConstLabels: serviceLabel,
		},
	)
	ticketsAnalyzed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tt",
			Subsystem:   "worker",
			Name:        "tickets_analyzed_total",
			Help:        "Tickets processed by the analysis worker by outcome.",
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		jobsTotal, jobDuration, jobsInFlight,
		pagesTotal, rateLimitWaits, ticketsImported, ticketsAnalyzed,
	)

	return &WorkerMetrics{
		registry:        registry,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		jobsInFlight:    jobsInFlight,
		pagesTotal:      pagesTotal,
		rateLimitWaits:  rateLimitWaits,
		ticketsImported: ticketsImported,
		ticketsAnalyzed: ticketsAnalyzed,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(kind, status string, duration time.Duration) {
	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObservePage(outcome string) {
	m.pagesTotal.WithLabelValues(outcome).Inc()
}

func (m *WorkerMetrics) ObserveRateLimitWait() {
	m.rateLimitWaits.Inc()
}

func (m *WorkerMetrics) AddTicketsImported(n int) {
	m.ticketsImported.Add(float64(n))
}

func (m *WorkerMetrics) ObserveAnalyzed(outcome string) {
	m.ticketsAnalyzed.WithLabelValues(outcome).Inc()
}
