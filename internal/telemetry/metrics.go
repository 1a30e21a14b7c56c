package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "petadoption"

// Idempotency outcomes.
const (
	IdempotencyReplay     = "replay"
	IdempotencyStored     = "stored"
	IdempotencyNotStored  = "not_stored"
	IdempotencyMissingKey = "missing_key"
	IdempotencyError      = "error"
)

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authRejected    *prometheus.CounterVec
	rateLimited     prometheus.Counter
	idempotency     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
}

// NewMetrics registers the collectors on a new registry together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 10},
			},
			[]string{"method", "route"},
		),
		authRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_rejected_total",
				Help:      "Requests rejected by API key authentication",
			},
			[]string{"status"},
		),
		rateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected with 429",
			},
		),
		idempotency: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_total",
				Help:      "Idempotency filter outcomes",
			},
			[]string{"outcome"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Degraded responses served by resource handlers",
			},
			[]string{"resource", "operation"},
		),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one completed HTTP request. route is the chi
// route pattern, or "unmatched".
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// AuthRejected counts a 401/403/500 from the auth filter.
func (m *Metrics) AuthRejected(status int) {
	if m == nil {
		return
	}
	m.authRejected.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RateLimited counts a 429.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Idempotency counts an idempotency filter outcome.
func (m *Metrics) Idempotency(outcome string) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(outcome).Inc()
}

// Fallback counts a degraded response.
func (m *Metrics) Fallback(resource, operation string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(resource, operation).Inc()
}
