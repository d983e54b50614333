package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"inventoryconsolidator/internal/config"
	"inventoryconsolidator/internal/consolidation"
	"inventoryconsolidator/internal/consumer"
	"inventoryconsolidator/internal/httpapi"
	"inventoryconsolidator/internal/platform/cache"
	"inventoryconsolidator/internal/platform/db"
	"inventoryconsolidator/internal/platform/kafka"
	"inventoryconsolidator/internal/platform/observability"
	"inventoryconsolidator/internal/query"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Container holds the long-lived resources of the consolidator process.
type Container struct {
	config  *config.Config
	logger  *zap.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics

	store    consolidation.Store
	engine   *consolidation.Engine
	query    *query.Service
	dlq      kafka.Producer
	group    *consumer.Group
	server   *http.Server
	shutdown observability.ShutdownFunc
}

// NewContainer loads configuration and builds every component. On failure the
// resources created so far are released.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newContainer(ctx, cfg)
}

func newContainer(ctx context.Context, cfg *config.Config) (_ *Container, err error) {
	c := &Container{config: cfg, metrics: observability.NewMetrics()}
	defer func() {
		if err != nil {
			c.Shutdown(context.Background())
		}
	}()

	tp, err := c.setupObservability(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.setupStore(ctx); err != nil {
		return nil, err
	}
	if err := c.setupConsumers(tp); err != nil {
		return nil, err
	}
	c.setupHTTP(ctx)

	c.logger.Info("Container initialized",
		zap.String("env", cfg.Env),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Int("shards", cfg.ConsumerShards),
	)
	return c, nil
}

// setupObservability starts the OTel SDKs, then builds the zap logger so its
// otelzap core binds to the real logger provider.
func (c *Container) setupObservability(ctx context.Context) (trace.TracerProvider, error) {
	logShutdown, logErr := observability.SetupLoggingSDK(ctx, c.config, config.ServiceName)
	tp, traceShutdown, traceErr := observability.SetupTracingSDK(ctx, c.config, config.ServiceName)
	c.shutdown = observability.JoinShutdown(logShutdown, traceShutdown)

	logger, err := observability.NewLogger(config.ServiceName, c.config.LogLevel)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	if logErr != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(logErr))
	}
	if traceErr != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(traceErr))
	}

	c.tracer = tp.Tracer(config.ServiceName)
	return tp, nil
}

func (c *Container) setupStore(ctx context.Context) error {
	switch c.config.StoreBackend {
	case config.BackendRedis:
		client, err := cache.New(ctx, c.config.RedisAddr)
		if err != nil {
			return err
		}
		c.store = consolidation.NewRedisStore(client)
	case config.BackendPostgres:
		pool, err := db.New(ctx, c.config.PGDSN)
		if err != nil {
			return err
		}
		pg := consolidation.NewPostgresStore(pool)
		c.store = pg
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
	default:
		c.logger.Warn("Using the in-memory store; consolidated state is lost on restart")
		c.store = consolidation.NewMemoryStore()
	}

	c.engine = consolidation.NewEngine(c.store,
		consolidation.WithDedupWindow(c.config.DedupWindow),
		consolidation.WithTracer(c.tracer),
		consolidation.WithMetrics(c.metrics, c.config.StoreBackend),
	)
	c.query = query.NewService(c.store)
	return nil
}

func (c *Container) setupConsumers(tp trace.TracerProvider) error {
	dlq, err := kafka.NewTracedWriter(c.config.KafkaBrokers, c.config.KafkaDLQTopic, config.ServiceName, tp)
	if err != nil {
		return err
	}
	c.dlq = dlq
	deadLetterer := consumer.NewKafkaDeadLetterer(dlq)

	policy := consumer.RetryPolicy{
		MaxAttempts:     c.config.RetryMaxAttempts,
		InitialInterval: c.config.RetryInitialInterval,
		MaxInterval:     c.config.RetryMaxInterval,
	}
	workers := make([]*consumer.Worker, 0, c.config.ConsumerShards)
	for shard := range c.config.ConsumerShards {
		reader := kafka.NewGroupReader(c.config.KafkaBrokers, c.config.KafkaTopic, c.config.KafkaGroupID)
		workers = append(workers, consumer.NewWorker(shard, reader, c.engine, deadLetterer, c.logger,
			consumer.WithRetryPolicy(policy),
			consumer.WithMetrics(c.metrics),
			consumer.WithTracer(c.tracer),
		))
	}
	c.group = consumer.NewGroup(workers...)
	return nil
}

func (c *Container) setupHTTP(ctx context.Context) {
	var health httpapi.HealthFunc
	if p, ok := c.store.(consolidation.Pinger); ok {
		health = p.Ping
	}
	c.server = &http.Server{
		Addr:              c.config.HTTPAddr,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		Handler:           httpapi.NewRouter(c.query, c.logger, c.metrics, health),
	}
}

// Shutdown closes components in reverse order of construction. It is safe on
// a partially built container.
func (c *Container) Shutdown(ctx context.Context) {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Shutting down infrastructure...")

	var errs []error
	if c.group != nil {
		errs = append(errs, c.group.Close())
	}
	if c.dlq != nil {
		errs = append(errs, c.dlq.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	if c.shutdown != nil {
		errs = append(errs, c.shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("Errors during shutdown", zap.Error(err))
	}

	_ = logger.Sync()
}

func (c *Container) Config() *config.Config          { return c.config }
func (c *Container) Logger() observability.Logger    { return c.logger }
func (c *Container) Metrics() *observability.Metrics { return c.metrics }
func (c *Container) Engine() *consolidation.Engine   { return c.engine }
func (c *Container) Query() *query.Service           { return c.query }
func (c *Container) ConsumerGroup() *consumer.Group  { return c.group }
func (c *Container) HTTPServer() *http.Server        { return c.server }
