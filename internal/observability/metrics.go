package observability

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "talent_match"

// Metrics holds the Prometheus collectors of the engine on a private registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rateLimited     *prometheus.CounterVec

	recomputeTotal    *prometheus.CounterVec
	recomputeDuration prometheus.Histogram
	freshHits         prometheus.Counter
	sharedFlights     prometheus.Counter
	invalidations     *prometheus.CounterVec
	markedStale       prometheus.Counter

	extractionTotal    *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	llmCalls           *prometheus.CounterVec
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter.",
			},
			[]string{"route"},
		),
		recomputeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "match",
				Name:      "recompute_total",
				Help:      "Match record recomputations by trigger and outcome.",
			},
			[]string{"trigger", "status"},
		),
		recomputeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "match",
				Name:      "recompute_duration_seconds",
				Help:      "Time spent scoring and storing one match record.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		freshHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "match",
				Name:      "fresh_hits_total",
				Help:      "Reads served from a fresh stored record.",
			},
		),
		sharedFlights: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "match",
				Name:      "shared_recompute_total",
				Help:      "Callers that joined an in-progress recomputation.",
			},
		),
		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "match",
				Name:      "invalidations_total",
				Help:      "Invalidation requests by entity type.",
			},
			[]string{"entity"},
		),
		markedStale: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "match",
				Name:      "marked_stale_total",
				Help:      "Match records flagged stale by invalidation.",
			},
		),
		extractionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "extraction",
				Name:      "runs_total",
				Help:      "Document extractions by mode and status.",
			},
			[]string{"mode", "status"},
		),
		extractionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "extraction",
				Name:      "duration_seconds",
				Help:      "Document extraction duration in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		llmCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "calls_total",
				Help:      "LLM extraction calls by outcome.",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.rateLimited,
		m.recomputeTotal,
		m.recomputeDuration,
		m.freshHits,
		m.sharedFlights,
		m.invalidations,
		m.markedStale,
		m.extractionTotal,
		m.extractionDuration,
		m.llmCalls,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type routeKey struct{}

type routeLabel struct {
	pattern string
}

// TagRoute wraps a handler registered on a ServeMux so the matched pattern
// reaches Middleware even when inner middleware replaced the request.
func TagRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if label, ok := r.Context().Value(routeKey{}).(*routeLabel); ok {
			label.pattern = r.Pattern
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware records request counts, durations and in-flight requests.
// The route label is the matched ServeMux pattern, so path ids do not blow up cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		label := &routeLabel{}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), routeKey{}, label)))

		route := label.pattern
		if route == "" {
			route = "unmatched"
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordRateLimited counts a request rejected by the limiter.
func (m *Metrics) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// RecordRecompute counts one scoring run. trigger is "request" or "sweep".
func (m *Metrics) RecordRecompute(trigger string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.recomputeTotal.WithLabelValues(trigger, status).Inc()
	if err == nil {
		m.recomputeDuration.Observe(duration.Seconds())
	}
}

// RecordFreshHit counts a read served without recomputation.
func (m *Metrics) RecordFreshHit() {
	if m == nil {
		return
	}
	m.freshHits.Inc()
}

// RecordShared counts a caller that received another caller's result.
func (m *Metrics) RecordShared() {
	if m == nil {
		return
	}
	m.sharedFlights.Inc()
}

// RecordInvalidation counts an invalidation and the records it flagged.
func (m *Metrics) RecordInvalidation(entity string, flagged int) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(entity).Inc()
	if flagged > 0 {
		m.markedStale.Add(float64(flagged))
	}
}

// RecordExtraction counts a finished extraction.
func (m *Metrics) RecordExtraction(mode, status string, duration time.Duration) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "unknown"
	}
	m.extractionTotal.WithLabelValues(mode, status).Inc()
	m.extractionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordLLMCall counts one model call. status is "success", "error" or "rejected".
func (m *Metrics) RecordLLMCall(status string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
