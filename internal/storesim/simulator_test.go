package storesim

import (
	"context"
	"testing"

	"inventoryconsolidator/internal/consolidation"
	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/merge"
	"inventoryconsolidator/internal/publisher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// enginePublisher applies events straight to an engine, standing in for the bus.
type enginePublisher struct {
	engine   *consolidation.Engine
	outcomes map[merge.Outcome]int
	lastSeq  map[inventory.Key]uint64
	t        *testing.T
}

func (p *enginePublisher) Publish(ctx context.Context, ev inventory.Event) (publisher.Receipt, error) {
	require.NoError(p.t, inventory.Validate(ev))
	assert.Greater(p.t, ev.Sequence, p.lastSeq[ev.Key()], "sequence must grow per key")
	p.lastSeq[ev.Key()] = ev.Sequence

	res, err := p.engine.Apply(ctx, ev)
	if err != nil {
		return publisher.Receipt{}, err
	}
	p.outcomes[res.Outcome]++
	return publisher.Receipt{EventID: ev.EventID, Key: ev.Key(), Sequence: ev.Sequence, Attempts: 1}, nil
}

func TestSimulatedStoreConvergesWithLocalState(t *testing.T) {
	store := consolidation.NewMemoryStore()
	pub := &enginePublisher{
		engine:   consolidation.NewEngine(store),
		outcomes: map[merge.Outcome]int{},
		lastSeq:  map[inventory.Key]uint64{},
		t:        t,
	}
	sim := New(publisher.NewRecorder("s1", pub, nil), 5, 42, zaptest.NewLogger(t))

	ctx := context.Background()
	for range 500 {
		require.NoError(t, sim.Step(ctx))
	}

	assert.Equal(t, 500, pub.outcomes[merge.Applied], "in-order delivery applies every event")

	for sku, it := range sim.items {
		rec, found, err := store.Get(ctx, inventory.Key{StoreID: "s1", SKU: sku})
		require.NoError(t, err)
		if !it.listed {
			if found {
				assert.True(t, rec.Deleted, sku)
			}
			continue
		}
		require.True(t, found, sku)
		assert.False(t, rec.Deleted, sku)
		assert.Equal(t, it.qty, rec.Quantity, sku)
		assert.Equal(t, it.active, rec.Active, sku)
	}
}
