package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inventoryconsolidator/internal/consolidation"
	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/platform/observability"
	"inventoryconsolidator/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func newTestRouter(t *testing.T, health HealthFunc) (http.Handler, *observability.Metrics) {
	t.Helper()
	store := consolidation.NewMemoryStore()
	engine := consolidation.NewEngine(store)
	ctx := context.Background()

	events := []inventory.Event{
		{EventID: "1", StoreID: "s1", SKU: "A", Type: inventory.EventCreated, Sequence: 1,
			Name: "Apple", Quantity: inventory.Int64(3), Price: inventory.Price("1.999")},
		{EventID: "2", StoreID: "s2", SKU: "A", Type: inventory.EventCreated, Sequence: 1,
			Name: "Apple", Quantity: inventory.Int64(4), Price: inventory.Price("0.55")},
		{EventID: "3", StoreID: "s2", SKU: "B", Type: inventory.EventCreated, Sequence: 1,
			Name: "Bread", Quantity: inventory.Int64(0), Price: inventory.Price("2")},
		{EventID: "4", StoreID: "s2", SKU: "B", Type: inventory.EventDeleted, Sequence: 2},
	}
	for _, ev := range events {
		_, err := engine.Apply(ctx, ev)
		require.NoError(t, err)
	}

	metrics := observability.NewMetrics()
	return NewRouter(query.NewService(store), zaptest.NewLogger(t), metrics, health), metrics
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRecordEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := get(t, h, "/stores/s1/inventory/A")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "s1", body["store_id"])
	assert.Equal(t, float64(3), body["quantity"])
	assert.Equal(t, "1.999", body["unit_price"])
	assert.Equal(t, true, body["available"])
	assert.NotContains(t, body, "recent_event_ids")
}

func TestTombstonedRecordIsNotFound(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := get(t, h, "/stores/s2/inventory/B")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, rr.Body.String())
}

func TestListingEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		path  string
		code  int
		count int
	}{
		{"/stores/s2/inventory", http.StatusOK, 1},
		{"/stores/s9/inventory", http.StatusNotFound, 0},
		{"/skus/A/stores", http.StatusOK, 2},
		{"/skus/B/stores", http.StatusNotFound, 0},
		{"/available?sku=A", http.StatusOK, 2},
		{"/available?store_id=s1&sku=A", http.StatusOK, 1},
		{"/available?store_id=s2&sku=B", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, h, tt.path)
			require.Equal(t, tt.code, rr.Code, rr.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var body listingView
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.count, body.Count)
			assert.Len(t, body.Records, tt.count)
		})
	}
}

func TestAvailableRequiresFilter(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/available").Code)
}

func TestSKUAvailabilityEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := get(t, h, "/skus/A/availability")
	require.Equal(t, http.StatusOK, rr.Code)
	var body availabilityView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.TotalQuantity)
	assert.Equal(t, 2, body.Stores)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/skus/Z/availability").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := true
	h, _ := newTestRouter(t, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("store unreachable")
	})

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)

	get(t, h, "/stores/s1/inventory")
	rr := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(),
		`inventory_consolidator_http_requests_total{code="200",route="/stores/{storeID}/inventory"} 1`))
}

func TestSpansAreNamedByRoutePattern(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h, _ := newTestRouter(t, nil)
	get(t, h, "/stores/s1/inventory/A")
	get(t, h, "/stores/s2/inventory/B")

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /stores/{storeID}/inventory/{sku}", spans[0].Name())
	assert.Equal(t, "GET /stores/{storeID}/inventory/{sku}", spans[1].Name())
}
