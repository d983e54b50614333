// Package publisher is the store-side half of the pipeline: it stamps local
// inventory mutations with identity and per-key sequence numbers and puts
// them on the bus.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/platform/kafka"
	"inventoryconsolidator/internal/platform/observability"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrBusUnavailable is returned while the circuit breaker is open.
var ErrBusUnavailable = errors.New("event bus unavailable")

// Receipt describes a published event.
type Receipt struct {
	EventID  string
	Key      inventory.Key
	Sequence uint64
	Attempts int
}

// Settings tune retries and the circuit breaker.
type Settings struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailures consecutive failed publishes open the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration
}

var DefaultSettings = Settings{
	MaxAttempts:     5,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	BreakerFailures: 5,
	BreakerCooldown: 10 * time.Second,
}

// Publisher writes events to the inventory topic keyed by store/sku.
type Publisher struct {
	producer kafka.Producer
	breaker  *gobreaker.CircuitBreaker[struct{}]
	settings Settings
	logger   observability.Logger
	tracer   observability.Tracer
	metrics  *observability.Metrics
}

// Option configures a Publisher.
type Option func(*Publisher)

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithTracer(t observability.Tracer) Option {
	return func(p *Publisher) { p.tracer = t }
}

func New(producer kafka.Producer, logger observability.Logger, settings Settings, opts ...Option) *Publisher {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	p := &Publisher{
		producer: producer,
		settings: settings,
		logger:   logger,
		tracer:   otel.Tracer("inventoryconsolidator/publisher"),
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "inventory-publisher",
		Timeout: settings.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return settings.BreakerFailures > 0 && c.ConsecutiveFailures >= settings.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish validates and writes ev, retrying transient failures. It blocks
// until the event is acknowledged or retries are spent; run it in its own
// goroutine for fire-and-forget.
func (p *Publisher) Publish(ctx context.Context, ev inventory.Event) (Receipt, error) {
	receipt := Receipt{EventID: ev.EventID, Key: ev.Key(), Sequence: ev.Sequence}

	ctx, span := p.tracer.Start(ctx, "publisher.publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.store_id", ev.StoreID),
		attribute.String("inventory.sku", ev.SKU),
		attribute.String("inventory.event_type", string(ev.Type)),
		attribute.Int64("inventory.sequence", int64(ev.Sequence)),
	)

	if err := inventory.Validate(ev); err != nil {
		p.metrics.Published("rejected")
		span.SetStatus(codes.Error, "invalid event")
		return receipt, err
	}
	payload, err := inventory.Encode(ev)
	if err != nil {
		p.metrics.Published("rejected")
		return receipt, err
	}
	msg := kafkago.Message{
		Key:   []byte(ev.Key().String()),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: kafka.HeaderEventType, Value: []byte(ev.Type)},
		},
	}

	op := func() error {
		receipt.Attempts++
		_, err := p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.producer.WriteMessage(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrBusUnavailable, err))
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.settings.InitialInterval
	b.MaxInterval = p.settings.MaxInterval
	b.MaxElapsedTime = 0
	notify := func(err error, next time.Duration) {
		p.metrics.Retried("publish")
		p.logger.Warn("Publish failed, retrying",
			zap.Error(err), zap.String("event_id", ev.EventID), zap.Duration("backoff", next))
	}

	err = backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.settings.MaxAttempts-1)), ctx), notify)
	if err != nil {
		p.metrics.Published("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		p.logger.Error("Failed to publish inventory event",
			zap.Error(err),
			zap.String("event_id", ev.EventID),
			zap.String("key", ev.Key().String()),
			zap.Int("attempts", receipt.Attempts),
		)
		return receipt, fmt.Errorf("publisher: publish %s: %w", ev.EventID, err)
	}

	p.metrics.Published("ok")
	p.logger.Debug("Published inventory event",
		zap.String("event_id", ev.EventID),
		zap.String("key", ev.Key().String()),
		zap.Uint64("sequence", ev.Sequence),
	)
	return receipt, nil
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
