package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inventory_consolidator"

// Metrics owns a private Prometheus registry. All methods are safe on a nil
// receiver so packages can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	events          *prometheus.CounterVec
	deadLetters     *prometheus.CounterVec
	retries         *prometheus.CounterVec
	processDuration prometheus.Histogram
	workerState     *prometheus.GaugeVec
	publishes       *prometheus.CounterVec
	upsertDuration  *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inventory events processed, by merge outcome.",
		}, []string{"outcome"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Events routed to the dead-letter topic, by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried operations, by operation.",
		}, []string{"op"}),
		processDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_seconds",
			Help:      "Time from fetch to commit for one event.",
			Buckets:   prometheus.DefBuckets,
		}),
		workerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_state",
			Help:      "Current consumer worker state per shard (0 stopped, 1 running, 2 processing, 3 backoff).",
		}, []string{"shard"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Store-side publish attempts, by result.",
		}, []string{"result"}),
		upsertDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_upsert_seconds",
			Help:      "Consolidation store upsert latency, by backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Query API requests, by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Query API latency per route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(
		m.events, m.deadLetters, m.retries, m.processDuration, m.workerState,
		m.publishes, m.upsertDuration, m.requestsTotal, m.requestDuration,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) EventProcessed(outcome string) {
	if m != nil {
		m.events.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) DeadLettered(reason string) {
	if m != nil {
		m.deadLetters.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Retried(op string) {
	if m != nil {
		m.retries.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) ObserveProcessing(d time.Duration) {
	if m != nil {
		m.processDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetWorkerState(shard int, state int) {
	if m != nil {
		m.workerState.WithLabelValues(strconv.Itoa(shard)).Set(float64(state))
	}
}

func (m *Metrics) Published(result string) {
	if m != nil {
		m.publishes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveUpsert(backend string, d time.Duration) {
	if m != nil {
		m.upsertDuration.WithLabelValues(backend).Observe(d.Seconds())
	}
}

// Middleware records request count and latency keyed by the chi route pattern.
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
