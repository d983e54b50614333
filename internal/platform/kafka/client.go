package kafka

import (
	"context"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tuning shared by every writer.
const (
	BatchTimeout = 10 * time.Millisecond
	BatchSize    = 100
	MaxBytes     = 10e6
)

// HeaderEventType carries the event type next to the JSON payload.
const HeaderEventType = "event_type"

// NewGroupReader returns a reader that joins groupID on topic. Offsets are
// committed explicitly by the caller (CommitInterval 0).
func NewGroupReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MaxBytes:       MaxBytes,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

// NewTracedWriter returns a writer for topic that records a producer span per
// message and injects trace context into its headers. Messages are
// partitioned by key hash so one key always lands on one partition.
func NewTracedWriter(brokers []string, topic, clientID string, tp trace.TracerProvider) (Producer, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	base := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           BatchTimeout,
		BatchSize:              BatchSize,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(topic),
			attribute.String("messaging.kafka.client_id", clientID),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: traced writer for %s: %w", topic, err)
	}
	return w, nil
}

// ExtractTraceContext returns ctx carrying the remote span found in headers.
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectTraceContext appends the span context in ctx to headers.
func InjectTraceContext(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// Header returns the value of the first header named key.
func Header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
