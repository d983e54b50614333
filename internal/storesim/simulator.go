// Package storesim plays one store: it mutates a local stock list at random
// and reports every mutation through a publisher.Recorder.
package storesim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"inventoryconsolidator/internal/platform/observability"
	"inventoryconsolidator/internal/publisher"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type item struct {
	listed bool
	active bool
	qty    int64
}

// Simulator is not safe for concurrent use; Run drives it from one goroutine.
type Simulator struct {
	rec    *publisher.Recorder
	logger observability.Logger
	rng    *rand.Rand
	skus   []string
	items  map[string]*item
}

func New(rec *publisher.Recorder, skuCount int, seed uint64, logger observability.Logger) *Simulator {
	s := &Simulator{
		rec:    rec,
		logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		items:  make(map[string]*item, skuCount),
	}
	for i := range skuCount {
		sku := fmt.Sprintf("SKU-%04d", i+1)
		s.skus = append(s.skus, sku)
		s.items[sku] = &item{}
	}
	return s
}

// Run performs one mutation per interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Step(ctx); err != nil {
				s.logger.Error("Store mutation not published", zap.Error(err))
			}
		}
	}
}

// Step applies one random mutation to a random SKU and publishes it.
func (s *Simulator) Step(ctx context.Context) error {
	sku := s.skus[s.rng.IntN(len(s.skus))]
	it := s.items[sku]

	var err error
	switch roll := s.rng.IntN(100); {
	case !it.listed:
		qty := int64(s.rng.IntN(50))
		_, err = s.rec.Created(ctx, sku, "prod-"+sku, "Product "+sku, qty, s.price())
		if err == nil {
			*it = item{listed: true, active: true, qty: qty}
		}
	case roll < 45 && it.qty > 0:
		_, err = s.rec.QuantityAdjusted(ctx, sku, -1)
		if err == nil {
			it.qty--
		}
	case roll < 70:
		n := int64(1 + s.rng.IntN(20))
		_, err = s.rec.QuantityAdjusted(ctx, sku, n)
		if err == nil {
			it.qty += n
		}
	case roll < 80:
		qty := int64(s.rng.IntN(60))
		_, err = s.rec.QuantitySet(ctx, sku, qty)
		if err == nil {
			it.qty = qty
		}
	case roll < 94:
		_, err = s.rec.PriceChanged(ctx, sku, s.price())
	case roll < 97 && it.active:
		_, err = s.rec.Deactivated(ctx, sku)
		if err == nil {
			it.active = false
		}
	default:
		_, err = s.rec.Deleted(ctx, sku)
		if err == nil {
			*it = item{}
		}
	}
	return err
}

func (s *Simulator) price() decimal.Decimal {
	return decimal.New(int64(99+s.rng.IntN(9900)), -2)
}
