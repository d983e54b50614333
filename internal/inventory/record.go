package inventory

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies one consolidated record.
type Key struct {
	StoreID string
	SKU     string
}

func (k Key) String() string {
	return k.StoreID + "/" + k.SKU
}

// ParseKey is the inverse of Key.String. Store ids must not contain '/'.
func ParseKey(s string) (Key, error) {
	storeID, sku, ok := strings.Cut(s, "/")
	if !ok || storeID == "" || sku == "" {
		return Key{}, fmt.Errorf("inventory: malformed key %q", s)
	}
	return Key{StoreID: storeID, SKU: sku}, nil
}

// Record is the merged, latest-known state of one product at one store.
type Record struct {
	StoreID   string          `json:"store_id"`
	SKU       string          `json:"sku"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Active    bool            `json:"active"`
	// Deleted marks a tombstone kept to reject replays of older sequences.
	Deleted bool `json:"deleted"`

	LastSequence uint64    `json:"last_sequence"`
	LastEventAt  time.Time `json:"last_event_at"`
	// ModifiedAt is the merge wall clock, not the event clock.
	ModifiedAt time.Time `json:"modified_at"`

	RecentEventIDs []string `json:"recent_event_ids,omitempty"`
}

// Key returns the record identity.
func (r Record) Key() Key {
	return Key{StoreID: r.StoreID, SKU: r.SKU}
}

// Available reports whether the product can be sold from this store right now.
func (r Record) Available() bool {
	return r.Active && !r.Deleted && r.Quantity > 0
}

// Seen reports whether eventID is among the recently applied event ids.
func (r Record) Seen(eventID string) bool {
	return eventID != "" && slices.Contains(r.RecentEventIDs, eventID)
}

// Clone returns a deep copy so callers never share the id window with a stored record.
func (r Record) Clone() Record {
	r.RecentEventIDs = slices.Clone(r.RecentEventIDs)
	return r
}

// RememberEvent appends eventID to the window, dropping the oldest ids beyond size.
func (r *Record) RememberEvent(eventID string, size int) {
	if size < 1 {
		size = 1
	}
	ids := append(slices.Clone(r.RecentEventIDs), eventID)
	if len(ids) > size {
		ids = ids[len(ids)-size:]
	}
	r.RecentEventIDs = ids
}
