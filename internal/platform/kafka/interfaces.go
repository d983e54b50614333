package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer writes single messages. Implemented by the traced otel-kafka writer.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer fetches without committing so offsets move only after a message
// has been fully handled. Implemented by *kafka.Reader in a consumer group.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
