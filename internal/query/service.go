// Package query is the read-only view over consolidated inventory. It never
// writes and never returns tombstoned records.
package query

import (
	"context"
	"fmt"

	"inventoryconsolidator/internal/consolidation"
	"inventoryconsolidator/internal/inventory"
)

// Reader is the read half of consolidation.Store.
type Reader interface {
	Get(ctx context.Context, key inventory.Key) (inventory.Record, bool, error)
	ListByStore(ctx context.Context, storeID string) ([]inventory.Record, error)
	ListBySKU(ctx context.Context, sku string) ([]inventory.Record, error)
}

var _ Reader = (consolidation.Store)(nil)

// Listing is a query result. Found is false when nothing matched; an empty
// result is never an error.
type Listing struct {
	Records []inventory.Record
	Found   bool
}

// Filter narrows Available. Empty fields match everything, but at least one
// must be set.
type Filter struct {
	StoreID string
	SKU     string
}

// Availability summarizes one SKU across the chain.
type Availability struct {
	SKU           string
	TotalQuantity int64
	Stores        int
	Records       []inventory.Record
}

type Service struct {
	reader Reader
}

func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// Get returns the live record for (storeID, sku).
func (s *Service) Get(ctx context.Context, storeID, sku string) (inventory.Record, bool, error) {
	rec, found, err := s.reader.Get(ctx, inventory.Key{StoreID: storeID, SKU: sku})
	if err != nil {
		return inventory.Record{}, false, fmt.Errorf("query: get %s/%s: %w", storeID, sku, err)
	}
	if !found || rec.Deleted {
		return inventory.Record{}, false, nil
	}
	return rec, true, nil
}

// StoreInventory lists every live record held by storeID.
func (s *Service) StoreInventory(ctx context.Context, storeID string) (Listing, error) {
	recs, err := s.reader.ListByStore(ctx, storeID)
	if err != nil {
		return Listing{}, fmt.Errorf("query: store inventory %s: %w", storeID, err)
	}
	return listing(recs, live), nil
}

// SKUAcrossStores lists the live records for sku in every store.
func (s *Service) SKUAcrossStores(ctx context.Context, sku string) (Listing, error) {
	recs, err := s.reader.ListBySKU(ctx, sku)
	if err != nil {
		return Listing{}, fmt.Errorf("query: sku across stores %s: %w", sku, err)
	}
	return listing(recs, live), nil
}

// Available lists records that are active with stock on hand.
func (s *Service) Available(ctx context.Context, f Filter) (Listing, error) {
	var (
		recs []inventory.Record
		err  error
	)
	switch {
	case f.StoreID != "" && f.SKU != "":
		rec, found, gerr := s.Get(ctx, f.StoreID, f.SKU)
		if gerr != nil {
			return Listing{}, gerr
		}
		if found {
			recs = []inventory.Record{rec}
		}
	case f.StoreID != "":
		recs, err = s.reader.ListByStore(ctx, f.StoreID)
	case f.SKU != "":
		recs, err = s.reader.ListBySKU(ctx, f.SKU)
	default:
		return Listing{}, ErrEmptyFilter
	}
	if err != nil {
		return Listing{}, fmt.Errorf("query: available: %w", err)
	}
	return listing(recs, inventory.Record.Available), nil
}

// SKUAvailability totals available stock for sku over the stores that carry it.
func (s *Service) SKUAvailability(ctx context.Context, sku string) (Availability, error) {
	l, err := s.Available(ctx, Filter{SKU: sku})
	if err != nil {
		return Availability{}, err
	}
	a := Availability{SKU: sku, Records: l.Records, Stores: len(l.Records)}
	for _, rec := range l.Records {
		a.TotalQuantity += rec.Quantity
	}
	return a, nil
}

func live(r inventory.Record) bool { return !r.Deleted }

func listing(recs []inventory.Record, keep func(inventory.Record) bool) Listing {
	out := make([]inventory.Record, 0, len(recs))
	for _, r := range recs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return Listing{Records: out, Found: len(out) > 0}
}
