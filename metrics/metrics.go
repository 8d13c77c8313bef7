package metrics

import (
	"net/http"
	"time"

	"property-scraper/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus series for jobs, adapters and navigation.
// Each instance has its own registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal          *prometheus.CounterVec
	PropertiesScraped  *prometheus.CounterVec
	JobDuration        prometheus.Histogram
	ActiveJobs         prometheus.Gauge
	AdapterRuns        *prometheus.CounterVec
	NavigationAttempts *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Scraping jobs by terminal status.",
		}, []string{"status"}),
		PropertiesScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "properties_scraped_total",
			Help: "Listings returned by each source.",
		}, []string{"source"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall time of a scraping job from start to terminal state.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_scraping_jobs",
			Help: "Jobs currently processing.",
		}),
		AdapterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapter_runs_total",
			Help: "Adapter runs by source and result.",
		}, []string{"source", "result"}),
		NavigationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navigation_attempts_total",
			Help: "Page navigation attempts by source and outcome.",
		}, []string{"source", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsTotal,
		m.PropertiesScraped,
		m.JobDuration,
		m.ActiveJobs,
		m.AdapterRuns,
		m.NavigationAttempts,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) JobStarted() {
	m.ActiveJobs.Inc()
}

// JobFinished records a terminal job and releases its active slot.
func (m *Metrics) JobFinished(status models.JobStatus, elapsed time.Duration) {
	m.ActiveJobs.Dec()
	m.JobsTotal.WithLabelValues(string(status)).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AdapterRun(source models.Source, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.AdapterRuns.WithLabelValues(string(source), result).Inc()
}

func (m *Metrics) ListingsScraped(source models.Source, n int) {
	if n > 0 {
		m.PropertiesScraped.WithLabelValues(string(source)).Add(float64(n))
	}
}

func (m *Metrics) NavigationAttempt(source models.Source, outcome string) {
	m.NavigationAttempts.WithLabelValues(string(source), outcome).Inc()
}
