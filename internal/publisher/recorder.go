package publisher

import (
	"context"
	"time"

	"inventoryconsolidator/internal/inventory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventPublisher is implemented by *Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, ev inventory.Event) (Receipt, error)
}

// Recorder turns one store's local mutations into events. It assigns the
// event id, the per-key sequence and the origin timestamp.
type Recorder struct {
	storeID   string
	publisher EventPublisher
	seq       *Sequencer
	now       func() time.Time
}

func NewRecorder(storeID string, pub EventPublisher, seq *Sequencer) *Recorder {
	if seq == nil {
		seq = NewSequencer()
	}
	return &Recorder{storeID: storeID, publisher: pub, seq: seq, now: time.Now}
}

// StoreID returns the store this recorder speaks for.
func (r *Recorder) StoreID() string { return r.storeID }

func (r *Recorder) Created(ctx context.Context, sku, productID, name string, qty int64, price decimal.Decimal) (Receipt, error) {
	return r.record(ctx, inventory.Event{
		SKU:       sku,
		ProductID: productID,
		Type:      inventory.EventCreated,
		Name:      name,
		Quantity:  &qty,
		Price:     &price,
	})
}

// QuantitySet reports an absolute stock count, e.g. after a recount.
func (r *Recorder) QuantitySet(ctx context.Context, sku string, qty int64) (Receipt, error) {
	return r.record(ctx, inventory.Event{SKU: sku, Type: inventory.EventQuantityChanged, Quantity: &qty})
}

// QuantityAdjusted reports a relative change, e.g. a sale (-1) or a delivery.
func (r *Recorder) QuantityAdjusted(ctx context.Context, sku string, delta int64) (Receipt, error) {
	return r.record(ctx, inventory.Event{SKU: sku, Type: inventory.EventQuantityChanged, QuantityDelta: &delta})
}

func (r *Recorder) PriceChanged(ctx context.Context, sku string, price decimal.Decimal) (Receipt, error) {
	return r.record(ctx, inventory.Event{SKU: sku, Type: inventory.EventPriceChanged, Price: &price})
}

func (r *Recorder) Deactivated(ctx context.Context, sku string) (Receipt, error) {
	return r.record(ctx, inventory.Event{SKU: sku, Type: inventory.EventDeactivated})
}

func (r *Recorder) Deleted(ctx context.Context, sku string) (Receipt, error) {
	return r.record(ctx, inventory.Event{SKU: sku, Type: inventory.EventDeleted})
}

func (r *Recorder) record(ctx context.Context, ev inventory.Event) (Receipt, error) {
	ev.EventID = uuid.NewString()
	ev.StoreID = r.storeID
	ev.Sequence = r.seq.Next(ev.Key())
	ev.OccurredAt = r.now().UTC()
	return r.publisher.Publish(ctx, ev)
}
