// Package httpapi exposes the query service as read-only JSON over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"inventoryconsolidator/internal/query"
	"inventoryconsolidator/internal/platform/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HealthFunc reports whether the service can answer queries.
type HealthFunc func(ctx context.Context) error

type handler struct {
	svc    *query.Service
	logger observability.Logger
	health HealthFunc
}

// NewRouter wires the query routes, /healthz and /metrics behind chi and
// otelhttp. metrics may be nil.
func NewRouter(svc *query.Service, logger observability.Logger, metrics *observability.Metrics, health HealthFunc) http.Handler {
	h := &handler{svc: svc, logger: logger, health: health}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(nameSpanByRoute)

	r.Get("/stores/{storeID}/inventory", h.storeInventory)
	r.Get("/stores/{storeID}/inventory/{sku}", h.record)
	r.Get("/skus/{sku}/stores", h.skuStores)
	r.Get("/skus/{sku}/availability", h.skuAvailability)
	r.Get("/available", h.available)
	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return otelhttp.NewHandler(r, "inventory-query",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method
		}),
	)
}

// nameSpanByRoute renames the request span once chi has matched a route, so
// span names stay bounded by the route table.
func nameSpanByRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		if pattern := rctx.RoutePattern(); pattern != "" {
			trace.SpanFromContext(r.Context()).SetName(r.Method + " " + pattern)
		}
	})
}

func (h *handler) record(w http.ResponseWriter, r *http.Request) {
	rec, found, err := h.svc.Get(r.Context(), chi.URLParam(r, "storeID"), chi.URLParam(r, "sku"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

func (h *handler) storeInventory(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.StoreInventory(r.Context(), chi.URLParam(r, "storeID"))
	h.writeListing(w, r, l, err)
}

func (h *handler) skuStores(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.SKUAcrossStores(r.Context(), chi.URLParam(r, "sku"))
	h.writeListing(w, r, l, err)
}

func (h *handler) available(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	l, err := h.svc.Available(r.Context(), query.Filter{StoreID: q.Get("store_id"), SKU: q.Get("sku")})
	if errors.Is(err, query.ErrEmptyFilter) {
		writeError(w, http.StatusBadRequest, "bad_request", "store_id or sku is required")
		return
	}
	h.writeListing(w, r, l, err)
}

func (h *handler) skuAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.SKUAvailability(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if a.Stores == 0 {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, availabilityView{
		SKU:           a.SKU,
		TotalQuantity: a.TotalQuantity,
		Stores:        a.Stores,
		Records:       newRecordViews(a.Records),
	})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) writeListing(w http.ResponseWriter, r *http.Request, l query.Listing, err error) {
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !l.Found {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, listingView{Count: len(l.Records), Records: newRecordViews(l.Records)})
}

func (h *handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("Query failed", zap.Error(err), zap.String("path", r.URL.Path))
	writeError(w, http.StatusServiceUnavailable, "unavailable", "")
}
