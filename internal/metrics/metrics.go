package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gatehouse"

// Capture results recorded by ObserveCapture.
const (
	ResultStored   = "stored"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics owns a dedicated registry so tests and multiple servers in one
// process never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	captures          *prometheus.CounterVec
	storedBytes       prometheus.Counter
	integrityFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route template and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Capture attempts by capture type and result.",
		}, []string{"type", "result"}),
		storedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_stored_bytes_total",
			Help:      "Encrypted image bytes written to the storage backend.",
		}),
		integrityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_integrity_failures_total",
			Help:      "Retrievals rejected by checksum or authentication failure.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.captures,
		m.storedBytes,
		m.integrityFailures,
	)
	return m
}

// RegisterActiveSessions exposes the live session count as a gauge read
// at scrape time.
func (m *Metrics) RegisterActiveSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Capture sessions currently held in memory.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCapture(captureType, result string) {
	m.captures.WithLabelValues(captureType, result).Inc()
}

func (m *Metrics) AddStoredBytes(n int64) {
	if n > 0 {
		m.storedBytes.Add(float64(n))
	}
}

func (m *Metrics) IncIntegrityFailure() {
	m.integrityFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
