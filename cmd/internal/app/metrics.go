package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated Prometheus registry for the server.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	gate        *prometheus.CounterVec
	feedClients prometheus.Gauge
}

// NewMetrics registers the tourdesk collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourdesk_http_requests_total",
			Help: "HTTP requests by method and status class.",
		}, []string{"method", "status_class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tourdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourdesk_auth_gate_decisions_total",
			Help: "Auth gate decisions: allowed, forbidden, error or the rejection reason.",
		}, []string{"result"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tourdesk_feed_clients",
			Help: "Connected activity feed websockets.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.gate, m.feedClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	method = metricMethod(method)
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveGate is installed as the gate's decision observer.
func (m *Metrics) ObserveGate(result string) { m.gate.WithLabelValues(result).Inc() }

// SetFeedClients is installed as the feed hub's count callback.
func (m *Metrics) SetFeedClients(n int) { m.feedClients.Set(float64(n)) }

// metricMethod bounds label cardinality to the standard methods.
func metricMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	}
	return "other"
}

