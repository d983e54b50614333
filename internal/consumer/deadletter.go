package consumer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"inventoryconsolidator/internal/platform/kafka"

	kafkago "github.com/segmentio/kafka-go"
)

// Dead-letter headers added to the original message.
const (
	HeaderDLQReason          = "dlq-reason"
	HeaderDLQError           = "dlq-error"
	HeaderDLQSourceTopic     = "dlq-source-topic"
	HeaderDLQSourcePartition = "dlq-source-partition"
	HeaderDLQSourceOffset    = "dlq-source-offset"
)

// DeadLetterer parks messages that cannot be applied.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg kafkago.Message, reason Reason, cause error) error
}

// KafkaDeadLetterer republishes the original key and value on the dead-letter
// topic the producer is bound to.
type KafkaDeadLetterer struct {
	producer kafka.Producer
}

func NewKafkaDeadLetterer(producer kafka.Producer) *KafkaDeadLetterer {
	return &KafkaDeadLetterer{producer: producer}
}

func (d *KafkaDeadLetterer) DeadLetter(ctx context.Context, msg kafkago.Message, reason Reason, cause error) error {
	if err := d.producer.WriteMessage(ctx, deadLetterMessage(msg, reason, cause)); err != nil {
		return fmt.Errorf("consumer: dead-letter %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return nil
}

func deadLetterMessage(msg kafkago.Message, reason Reason, cause error) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(msg.Headers)+5)
	for _, h := range msg.Headers {
		if strings.HasPrefix(h.Key, "dlq-") {
			continue
		}
		headers = append(headers, h)
	}
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	headers = append(headers,
		kafkago.Header{Key: HeaderDLQReason, Value: []byte(reason)},
		kafkago.Header{Key: HeaderDLQError, Value: []byte(errText)},
		kafkago.Header{Key: HeaderDLQSourceTopic, Value: []byte(msg.Topic)},
		kafkago.Header{Key: HeaderDLQSourcePartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafkago.Header{Key: HeaderDLQSourceOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
	)
	return kafkago.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}
