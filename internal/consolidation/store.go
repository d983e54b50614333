// Package consolidation holds the authoritative (store, SKU) -> record mapping and
// the engine that funnels every write through the merge rules.
package consolidation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"inventoryconsolidator/internal/inventory"
)

// ErrStoreUnavailable wraps backend failures that are worth retrying.
var ErrStoreUnavailable = errors.New("consolidation store unavailable")

// MutateFunc receives the current record (found is false for a new key) and
// returns the next record and whether it should be written. It runs while the
// key's mutation slot is held and must not call back into the store.
type MutateFunc func(current inventory.Record, found bool) (next inventory.Record, changed bool)

// Store is the authoritative mapping from key to latest merged record.
//
// Upsert guarantees at most one mutation in flight per key; mutations of
// different keys proceed independently. Reads return whole records, never a
// partially applied one. There is no cross-key transactional view.
type Store interface {
	Get(ctx context.Context, key inventory.Key) (inventory.Record, bool, error)
	Upsert(ctx context.Context, key inventory.Key, fn MutateFunc) (inventory.Record, error)
	ListByStore(ctx context.Context, storeID string) ([]inventory.Record, error)
	ListBySKU(ctx context.Context, sku string) ([]inventory.Record, error)
	Close() error
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func sortRecords(recs []inventory.Record) {
	slices.SortFunc(recs, func(a, b inventory.Record) int {
		return cmp.Or(cmp.Compare(a.StoreID, b.StoreID), cmp.Compare(a.SKU, b.SKU))
	})
}
