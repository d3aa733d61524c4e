package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the web service.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	rateLimited        *prometheus.CounterVec
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	notifications      *prometheus.CounterVec
}

// NewMetrics creates the registry and the service metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lako_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lako_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lako_rate_limited_total",
		Help: "Requests rejected by a fixed-window limiter.",
	}, []string{"limiter"})
	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lako_efaktura_generations_total",
		Help: "Invoice generation cycles by terminal state.",
	}, []string{"state"})
	generationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lako_efaktura_generation_duration_seconds",
		Help:    "Wall time of invoice generation cycles.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
	}, []string{"state"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lako_notifications_total",
		Help: "Form notifications by sink and outcome.",
	}, []string{"sink", "outcome"})
	registry.MustRegister(requests, duration, rateLimited, generations, generationDuration, notifications)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		rateLimited:        rateLimited,
		generations:        generations,
		generationDuration: generationDuration,
		notifications:      notifications,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RateLimited returns a callback counting rejections of the named limiter.
func (m *Metrics) RateLimited(limiter string) func(key string) {
	if m == nil {
		return nil
	}
	counter := m.rateLimited.WithLabelValues(limiter)
	return func(string) { counter.Inc() }
}

// ObserveGeneration records one finished generation cycle.
func (m *Metrics) ObserveGeneration(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(state).Inc()
	m.generationDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

// ObserveNotification records one sink outcome.
func (m *Metrics) ObserveNotification(sink, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sink, outcome).Inc()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
