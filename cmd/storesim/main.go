// Command storesim plays a single store, publishing random inventory
// mutations to the inventory topic.
package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventoryconsolidator/internal/config"
	"inventoryconsolidator/internal/platform/kafka"
	"inventoryconsolidator/internal/platform/observability"
	"inventoryconsolidator/internal/publisher"
	"inventoryconsolidator/internal/storesim"

	"go.uber.org/zap"
)

const serviceName = "inventory-storesim"

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("storesim failed: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logShutdown, logErr := observability.SetupLoggingSDK(ctx, cfg, serviceName)
	tp, traceShutdown, traceErr := observability.SetupTracingSDK(ctx, cfg, serviceName)
	shutdown := observability.JoinShutdown(logShutdown, traceShutdown)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	logger, err := observability.NewLogger(serviceName, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if logErr != nil {
		logger.Error("Failed to setup OpenTelemetry logging", zap.Error(logErr))
	}
	if traceErr != nil {
		logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(traceErr))
	}

	producer, err := kafka.NewTracedWriter(cfg.KafkaBrokers, cfg.KafkaTopic, serviceName, tp)
	if err != nil {
		return err
	}

	pub := publisher.New(producer, logger, publisher.DefaultSettings,
		publisher.WithTracer(tp.Tracer(serviceName)),
	)
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error("Failed to close producer", zap.Error(err))
		}
	}()

	sim := storesim.New(publisher.NewRecorder(cfg.SimStoreID, pub, nil), cfg.SimSKUs, uint64(time.Now().UnixNano()), logger)
	logger.Info("Store simulator started",
		zap.String("store_id", cfg.SimStoreID),
		zap.Int("skus", cfg.SimSKUs),
		zap.Duration("interval", cfg.SimInterval),
	)
	return sim.Run(ctx, cfg.SimInterval)
}
