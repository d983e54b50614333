// Package inventory holds the inventory update event model and the consolidated
// product record it folds into.
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names the kind of change a store reports.
type EventType string

const (
	EventCreated         EventType = "CREATED"
	EventQuantityChanged EventType = "QUANTITY_CHANGED"
	EventPriceChanged    EventType = "PRICE_CHANGED"
	EventDeactivated     EventType = "DEACTIVATED"
	EventDeleted         EventType = "DELETED"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventQuantityChanged, EventPriceChanged, EventDeactivated, EventDeleted:
		return true
	}
	return false
}

// Event is a single inventory change at one store. Sequence is assigned by the
// originating store and is strictly increasing per (StoreID, SKU); EventID is the
// deduplication id carried across redeliveries.
type Event struct {
	EventID    string    `json:"event_id" validate:"required"`
	StoreID    string    `json:"store_id" validate:"required,excludes=/"`
	SKU        string    `json:"sku" validate:"required"`
	ProductID  string    `json:"product_id,omitempty"`
	Type       EventType `json:"type" validate:"required"`
	Sequence   uint64    `json:"sequence" validate:"gte=1"`
	OccurredAt time.Time `json:"occurred_at"`

	Name          string           `json:"name,omitempty"`
	Quantity      *int64           `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	QuantityDelta *int64           `json:"quantity_delta,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
}

// Key returns the consolidation key the event applies to.
func (e Event) Key() Key {
	return Key{StoreID: e.StoreID, SKU: e.SKU}
}

// Int64 returns a pointer to v, for building optional payload fields.
func Int64(v int64) *int64 { return &v }

// Price returns a pointer to the decimal parsed from s. It panics on malformed input
// and is meant for literals.
func Price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
