// Package consumer drives the per-shard loop that pulls inventory events off
// the bus, merges them and commits offsets only once an event is handled.
package consumer

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/merge"
	"inventoryconsolidator/internal/platform/kafka"
	"inventoryconsolidator/internal/platform/observability"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// State is the lifecycle state of a worker.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateProcessing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRunning:
		return "RUNNING"
	case StateProcessing:
		return "PROCESSING"
	case StateBackoff:
		return "BACKOFF"
	}
	return "UNKNOWN"
}

// Applier folds one event into the consolidation store.
type Applier interface {
	Apply(ctx context.Context, ev inventory.Event) (merge.Result, error)
}

// RetryPolicy bounds retries of store failures. Commits and dead-letter
// writes reuse the intervals but retry until they succeed or shutdown.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// Worker owns one shard: a single group reader and its offsets.
type Worker struct {
	shard    int
	consumer kafka.Consumer
	applier  Applier
	dlq      DeadLetterer
	logger   observability.Logger
	tracer   observability.Tracer
	metrics  *observability.Metrics
	retry    RetryPolicy

	state atomic.Int32
}

// Option configures a Worker.
type Option func(*Worker)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(w *Worker) { w.retry = p }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithTracer(t observability.Tracer) Option {
	return func(w *Worker) { w.tracer = t }
}

func NewWorker(shard int, consumer kafka.Consumer, applier Applier, dlq DeadLetterer, logger observability.Logger, opts ...Option) *Worker {
	w := &Worker{
		shard:    shard,
		consumer: consumer,
		applier:  applier,
		dlq:      dlq,
		logger:   logger.With(zap.Int("shard", shard)),
		tracer:   otel.Tracer("inventoryconsolidator/consumer"),
		retry:    DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.retry.MaxAttempts < 1 {
		w.retry.MaxAttempts = 1
	}
	return w
}

// Shard returns the shard index.
func (w *Worker) Shard() int { return w.shard }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.metrics.SetWorkerState(w.shard, int(s))
}

func (w *Worker) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retry.InitialInterval
	b.MaxInterval = w.retry.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run fetches and handles messages until ctx is cancelled or the reader is
// closed. A message already fetched when ctx is cancelled is still merged and
// committed.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(StateRunning)
	defer w.setState(StateStopped)
	w.logger.Info("Consumer worker started")

	fetchBackOff := w.newBackOff()
	for {
		msg, err := w.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				w.logger.Info("Consumer worker stopping", zap.Error(err))
				return nil
			}
			w.logger.Error("Failed to fetch message", zap.Error(err))
			w.setState(StateBackoff)
			if !sleep(ctx, fetchBackOff.NextBackOff()) {
				return nil
			}
			w.setState(StateRunning)
			continue
		}
		fetchBackOff.Reset()

		w.setState(StateProcessing)
		w.handle(ctx, msg)
		w.setState(StateRunning)
	}
}

// handle processes msg to completion. Work runs on a context detached from
// shutdown; only waits between retries observe shutdownCtx.
func (w *Worker) handle(shutdownCtx context.Context, msg kafkago.Message) {
	start := time.Now()
	defer func() { w.metrics.ObserveProcessing(time.Since(start)) }()

	ctx := kafka.ExtractTraceContext(context.WithoutCancel(shutdownCtx), msg.Headers)
	ctx, span := w.tracer.Start(ctx, "consumer.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.kafka.message.key", string(msg.Key)),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	log := w.logger.With(
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	ev, err := inventory.Decode(msg.Value)
	if err != nil {
		log.Warn("Malformed inventory event", zap.Error(err))
		span.SetStatus(codes.Error, "malformed event")
		w.metrics.EventProcessed(merge.RejectedInvalid.String())
		if !w.deadLetter(ctx, shutdownCtx, log, msg, ReasonMalformed, err) {
			return
		}
		w.commit(ctx, shutdownCtx, log, msg)
		return
	}

	log = log.With(
		zap.String("store_id", ev.StoreID),
		zap.String("sku", ev.SKU),
		zap.Uint64("sequence", ev.Sequence),
		zap.String("event_id", ev.EventID),
	)

	res, err := w.apply(ctx, shutdownCtx, log, ev)
	switch {
	case err != nil && shutdownCtx.Err() != nil:
		log.Warn("Shutdown while retrying store; leaving message uncommitted", zap.Error(err))
		return
	case err != nil:
		log.Error("Store retries exhausted", zap.Error(err), zap.Int("attempts", w.retry.MaxAttempts))
		span.SetStatus(codes.Error, "retries exhausted")
		if !w.deadLetter(ctx, shutdownCtx, log, msg, ReasonRetryExhausted, err) {
			return
		}
	case res.Outcome == merge.RejectedInvalid:
		reason := rejectionReason(res.Err)
		log.Warn("Inventory event rejected", zap.Error(res.Err), zap.String("reason", string(reason)))
		span.SetStatus(codes.Error, string(reason))
		w.metrics.EventProcessed(res.Outcome.String())
		if !w.deadLetter(ctx, shutdownCtx, log, msg, reason, res.Err) {
			return
		}
	default:
		log.Debug("Inventory event merged", zap.Stringer("outcome", res.Outcome))
		span.SetAttributes(attribute.String("inventory.outcome", res.Outcome.String()))
		w.metrics.EventProcessed(res.Outcome.String())
	}

	w.commit(ctx, shutdownCtx, log, msg)
}

// apply retries store failures up to MaxAttempts. The error is the last
// store error, or a context error when shutdown interrupted a backoff wait.
func (w *Worker) apply(ctx, shutdownCtx context.Context, log observability.Logger, ev inventory.Event) (merge.Result, error) {
	var res merge.Result
	op := func() error {
		r, err := w.applier.Apply(ctx, ev)
		if err != nil {
			if Classify(err) != ClassTransient {
				log.Error("Unexpected apply error", zap.Error(err), zap.Stringer("class", Classify(err)))
			}
			return err
		}
		res = r
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(w.newBackOff(), uint64(w.retry.MaxAttempts-1)),
		shutdownCtx,
	)
	err := backoff.RetryNotify(op, b, w.notify(log, "store"))
	w.setState(StateProcessing)
	return res, err
}

func (w *Worker) deadLetter(ctx, shutdownCtx context.Context, log observability.Logger, msg kafkago.Message, reason Reason, cause error) bool {
	op := func() error { return w.dlq.DeadLetter(ctx, msg, reason, cause) }
	err := backoff.RetryNotify(op, backoff.WithContext(w.newBackOff(), shutdownCtx), w.notify(log, "dead_letter"))
	w.setState(StateProcessing)
	if err != nil {
		log.Warn("Dead-letter publish abandoned at shutdown; message will be redelivered",
			zap.Error(err), zap.String("reason", string(reason)))
		return false
	}
	w.metrics.DeadLettered(string(reason))
	log.Info("Message dead-lettered", zap.String("reason", string(reason)))
	return true
}

func (w *Worker) commit(ctx, shutdownCtx context.Context, log observability.Logger, msg kafkago.Message) {
	op := func() error { return w.consumer.CommitMessages(ctx, msg) }
	err := backoff.RetryNotify(op, backoff.WithContext(w.newBackOff(), shutdownCtx), w.notify(log, "commit"))
	w.setState(StateProcessing)
	if err != nil {
		log.Warn("Commit abandoned at shutdown; message will be redelivered", zap.Error(err))
	}
}

func (w *Worker) notify(log observability.Logger, op string) backoff.Notify {
	return func(err error, next time.Duration) {
		w.setState(StateBackoff)
		w.metrics.Retried(op)
		log.Warn("Retrying after failure", zap.String("op", op), zap.Error(err), zap.Duration("backoff", next))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
