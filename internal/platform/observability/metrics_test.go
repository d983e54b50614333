package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsExposeConsumerCounters(t *testing.T) {
	m := NewMetrics()
	m.EventProcessed("applied")
	m.EventProcessed("applied")
	m.DeadLettered("malformed_event")
	m.Retried("store")
	m.SetWorkerState(2, 3)
	m.ObserveProcessing(5 * time.Millisecond)
	m.ObserveUpsert("memory", time.Millisecond)
	m.Published("ok")

	body := scrape(t, m)
	assert.Contains(t, body, `inventory_consolidator_events_total{outcome="applied"} 2`)
	assert.Contains(t, body, `inventory_consolidator_dead_letters_total{reason="malformed_event"} 1`)
	assert.Contains(t, body, `inventory_consolidator_retries_total{op="store"} 1`)
	assert.Contains(t, body, `inventory_consolidator_worker_state{shard="2"} 3`)
	assert.Contains(t, body, `inventory_consolidator_publish_total{result="ok"} 1`)
	assert.Contains(t, body, `inventory_consolidator_store_upsert_seconds_bucket{backend="memory"`)
	assert.Contains(t, body, "inventory_consolidator_event_processing_seconds_count 1")
}

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rctx := chi.NewRouteContext()
	rctx.RoutePatterns = append(rctx.RoutePatterns, "/stores/{storeID}/inventory")
	req := httptest.NewRequest(http.MethodGet, "/stores/s1/inventory", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	assert.Contains(t, scrape(t, m),
		`inventory_consolidator_http_requests_total{code="404",route="/stores/{storeID}/inventory"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventProcessed("applied")
		m.DeadLettered("x")
		m.SetWorkerState(0, 1)
		m.ObserveUpsert("memory", time.Second)
	})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
