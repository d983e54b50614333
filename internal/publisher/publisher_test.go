package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/platform/kafka"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProducer struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []kafkago.Message
}

func (p *fakeProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures != 0 {
		if p.failures > 0 {
			p.failures--
		}
		return errors.New("leader not available")
	}
	p.written = append(p.written, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) Written() []kafkago.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafkago.Message(nil), p.written...)
}

var testSettings = Settings{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	BreakerFailures: 5,
	BreakerCooldown: time.Minute,
}

func validEvent() inventory.Event {
	return inventory.Event{
		EventID:  "evt-1",
		StoreID:  "s1",
		SKU:      "A",
		Type:     inventory.EventPriceChanged,
		Sequence: 4,
		Price:    inventory.Price("3.20"),
	}
}

func TestPublishWritesKeyedMessage(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, zaptest.NewLogger(t), testSettings)

	receipt, err := p.Publish(context.Background(), validEvent())
	require.NoError(t, err)
	assert.Equal(t, Receipt{EventID: "evt-1", Key: inventory.Key{StoreID: "s1", SKU: "A"}, Sequence: 4, Attempts: 1}, receipt)

	msgs := prod.Written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "s1/A", string(msgs[0].Key))
	assert.Equal(t, "PRICE_CHANGED", kafka.Header(msgs[0].Headers, kafka.HeaderEventType))

	decoded, err := inventory.Decode(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), decoded.Sequence)
	assert.Equal(t, "evt-1", decoded.EventID)
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	prod := &fakeProducer{failures: 2}
	p := New(prod, zaptest.NewLogger(t), testSettings)

	receipt, err := p.Publish(context.Background(), validEvent())
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Attempts)
	assert.Len(t, prod.Written(), 1)
}

func TestPublishGivesUpAfterMaxAttempts(t *testing.T) {
	prod := &fakeProducer{failures: -1}
	p := New(prod, zaptest.NewLogger(t), testSettings)

	receipt, err := p.Publish(context.Background(), validEvent())
	require.Error(t, err)
	assert.Equal(t, testSettings.MaxAttempts, receipt.Attempts)
	assert.Empty(t, prod.Written())
}

func TestPublishRejectsInvalidEventWithoutWriting(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, zaptest.NewLogger(t), testSettings)

	ev := validEvent()
	ev.Price = nil
	_, err := p.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, inventory.ErrMalformedEvent)
	assert.Zero(t, prod.calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	prod := &fakeProducer{failures: -1}
	settings := testSettings
	settings.MaxAttempts = 1
	settings.BreakerFailures = 2
	p := New(prod, zaptest.NewLogger(t), settings)

	for range 2 {
		_, err := p.Publish(context.Background(), validEvent())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBusUnavailable)
	}

	_, err := p.Publish(context.Background(), validEvent())
	assert.ErrorIs(t, err, ErrBusUnavailable)
	assert.Equal(t, 2, prod.calls, "an open breaker must not reach the producer")
}

func TestSequencerIsPerKey(t *testing.T) {
	s := NewSequencer()
	a := inventory.Key{StoreID: "s1", SKU: "A"}
	b := inventory.Key{StoreID: "s1", SKU: "B"}

	assert.Equal(t, uint64(1), s.Next(a))
	assert.Equal(t, uint64(2), s.Next(a))
	assert.Equal(t, uint64(1), s.Next(b))

	s.Seed(b, 10)
	assert.Equal(t, uint64(11), s.Next(b))
	s.Seed(b, 3)
	assert.Equal(t, uint64(12), s.Next(b))
}

func TestSequencerConcurrentNextIsUnique(t *testing.T) {
	s := NewSequencer()
	key := inventory.Key{StoreID: "s1", SKU: "A"}
	const n = 200

	seen := make(chan uint64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- s.Next(key)
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[uint64]bool{}
	for v := range seen {
		unique[v] = true
	}
	assert.Len(t, unique, n)
	assert.True(t, unique[n])
}

func TestRecorderStampsEvents(t *testing.T) {
	prod := &fakeProducer{}
	r := NewRecorder("s9", New(prod, zaptest.NewLogger(t), testSettings), nil)
	ctx := context.Background()

	_, err := r.Created(ctx, "A", "prod-A", "Widget", 5, decimal.RequireFromString("1.25"))
	require.NoError(t, err)
	_, err = r.QuantityAdjusted(ctx, "A", -2)
	require.NoError(t, err)
	_, err = r.Created(ctx, "B", "prod-B", "Gadget", 1, decimal.RequireFromString("7"))
	require.NoError(t, err)
	_, err = r.Deleted(ctx, "A")
	require.NoError(t, err)

	var events []inventory.Event
	for _, m := range prod.Written() {
		ev, err := inventory.Decode(m.Value)
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.Len(t, events, 4)

	assert.Equal(t, []uint64{1, 2, 1, 3}, []uint64{events[0].Sequence, events[1].Sequence, events[2].Sequence, events[3].Sequence})
	ids := map[string]bool{}
	for _, ev := range events {
		assert.Equal(t, "s9", ev.StoreID)
		assert.False(t, ev.OccurredAt.IsZero())
		assert.NotEmpty(t, ev.EventID)
		ids[ev.EventID] = true
	}
	assert.Len(t, ids, 4)
	assert.Equal(t, int64(-2), *events[1].QuantityDelta)
	assert.Equal(t, inventory.EventDeleted, events[3].Type)
}
