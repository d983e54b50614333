package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/merge"
	"inventoryconsolidator/internal/platform/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Engine is the only write path into a Store: every event is folded through
// merge.Apply while the key's mutation slot is held.
type Engine struct {
	store   Store
	window  int
	now     func() time.Time
	tracer  observability.Tracer
	metrics *observability.Metrics
	backend string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDedupWindow bounds how many recent event ids each record keeps.
func WithDedupWindow(n int) EngineOption {
	return func(e *Engine) { e.window = n }
}

// WithClock replaces time.Now for ModifiedAt stamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithTracer(t observability.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics records upsert latency under the given backend label.
func WithMetrics(m *observability.Metrics, backend string) EngineOption {
	return func(e *Engine) {
		e.metrics = m
		e.backend = backend
	}
}

func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		window: merge.DefaultDedupWindow,
		now:    time.Now,
		tracer: otel.Tracer("inventoryconsolidator/consolidation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply merges ev into the store. The returned error is non-nil only for
// store failures, which wrap ErrStoreUnavailable; merge rejections are
// reported through Result.Outcome and Result.Err.
func (e *Engine) Apply(ctx context.Context, ev inventory.Event) (merge.Result, error) {
	ctx, span := e.tracer.Start(ctx, "consolidation.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.store_id", ev.StoreID),
		attribute.String("inventory.sku", ev.SKU),
		attribute.String("inventory.event_type", string(ev.Type)),
		attribute.Int64("inventory.sequence", int64(ev.Sequence)),
	)

	var res merge.Result
	start := time.Now()
	_, err := e.store.Upsert(ctx, ev.Key(), func(current inventory.Record, found bool) (inventory.Record, bool) {
		res = merge.Apply(current, found, ev, merge.Options{Now: e.now().UTC(), DedupWindow: e.window})
		return res.Record, res.Outcome.Changed()
	})
	e.metrics.ObserveUpsert(e.backend, time.Since(start))

	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return merge.Result{}, err
	}

	span.SetAttributes(attribute.String("inventory.outcome", res.Outcome.String()))
	if res.Outcome == merge.RejectedInvalid {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res, nil
}

// Store exposes the underlying store for read paths.
func (e *Engine) Store() Store { return e.store }
