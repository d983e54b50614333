package observability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inventoryconsolidator/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ShutdownFunc flushes and stops a telemetry provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// hostEndpoint strips the scheme from an endpoint URL; the OTLP WithEndpoint
// options take host[:port] only.
func hostEndpoint(raw string) string {
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	return strings.TrimSuffix(raw, "/")
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
}

// SetupPropagation installs W3C trace context and baggage as the global
// propagator. Trace context travels in Kafka headers, so this runs even when
// exporters are disabled.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// SetupLoggingSDK installs an OTLP/HTTP logger provider as the global one.
// It is a no-op when no collector endpoint is configured.
func SetupLoggingSDK(ctx context.Context, cfg *config.Config, serviceName string) (ShutdownFunc, error) {
	if !cfg.TelemetryEnabled() {
		return noopShutdown, nil
	}

	res, err := newResource(serviceName)
	if err != nil {
		return noopShutdown, fmt.Errorf("observability: create resource: %w", err)
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(hostEndpoint(cfg.OtelEndpoint)),
		otlploghttp.WithURLPath(config.LogsPath),
		otlploghttp.WithHeaders(map[string]string{"Authorization": cfg.OtelAuthHeader}),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("observability: otlp log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(config.ExportTimeout),
			sdklog.WithMaxQueueSize(config.MaxQueueSize),
		)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(provider)

	return provider.Shutdown, nil
}

// SetupTracingSDK installs an OTLP/HTTP tracer provider as the global one and
// returns it for instrumentations that take an explicit provider. When
// telemetry is disabled or setup fails the current global provider is
// returned instead.
func SetupTracingSDK(ctx context.Context, cfg *config.Config, serviceName string) (trace.TracerProvider, ShutdownFunc, error) {
	SetupPropagation()
	if !cfg.TelemetryEnabled() {
		return otel.GetTracerProvider(), noopShutdown, nil
	}

	res, err := newResource(serviceName)
	if err != nil {
		return otel.GetTracerProvider(), noopShutdown, fmt.Errorf("observability: create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(hostEndpoint(cfg.OtelEndpoint)),
		otlptracehttp.WithURLPath(config.TracesPath),
		otlptracehttp.WithHeaders(map[string]string{"Authorization": cfg.OtelAuthHeader}),
	)
	if err != nil {
		return otel.GetTracerProvider(), noopShutdown, fmt.Errorf("observability: otlp trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithExportTimeout(config.ExportTimeout),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		)),
	)
	otel.SetTracerProvider(provider)

	return provider, provider.Shutdown, nil
}

// JoinShutdown runs every fn in reverse order and joins their errors.
func JoinShutdown(fns ...ShutdownFunc) ShutdownFunc {
	return func(ctx context.Context) error {
		var err error
		for i := len(fns) - 1; i >= 0; i-- {
			if fns[i] != nil {
				err = errors.Join(err, fns[i](ctx))
			}
		}
		return err
	}
}
