package telemetry

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/pkg/models"
)

// KafkaConsumer reads raw telemetry payloads off a message bus and feeds them
// through the same Parse -> EventAppender pipeline as the webhook handler,
// for providers that stream updates instead of calling the endpoint
// directly.
type KafkaConsumer struct {
	Events   EventAppender
	Logger   *logging.Logger
	UserIDOf func(vin string) (string, bool)

	reader *kafka.Reader
}

// NewKafkaConsumer opens a reader against the given brokers/topic/group.
func NewKafkaConsumer(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})
}

// Run consumes messages until ctx is cancelled, parsing and appending each
// one. A message that fails to parse is committed anyway rather than
// blocking the partition on a poison message; a storage failure is logged
// and left uncommitted so it's redelivered.
func (k *KafkaConsumer) Run(ctx context.Context, reader *kafka.Reader) error {
	k.reader = reader
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.Logger.Error("telemetry: kafka fetch failed", "error", err)
			continue
		}

		if k.handleMessage(ctx, msg.Value, msg.Topic) {
			if err := reader.CommitMessages(ctx, msg); err != nil {
				k.Logger.Error("telemetry: kafka commit failed", "error", err)
			}
		}
	}
}

// handleMessage parses and appends a single message body, returning whether
// the offset should be committed. A parse failure commits anyway — a poison
// message must not wedge the partition — while a storage failure leaves the
// offset uncommitted so the broker redelivers it. Split out from Run so this
// decision logic is testable without a live broker.
func (k *KafkaConsumer) handleMessage(ctx context.Context, value []byte, topic string) bool {
	event, err := Parse(models.SourceKafka, value)
	if err != nil {
		k.Logger.Warn("telemetry: kafka message parse failed", "error", err, "topic", topic)
		return true
	}

	if k.UserIDOf != nil {
		if userID, ok := k.UserIDOf(event.VIN); ok {
			event.UserID = userID
		}
	}

	if err := k.Events.Append(ctx, event); err != nil {
		k.Logger.Error("telemetry: kafka append failed", "vin", event.VIN, "error", err)
		return false
	}

	k.Logger.LogEventIngested(event.VIN, string(event.Source), event.ID)
	return true
}

// Close releases the underlying reader.
func (k *KafkaConsumer) Close() error {
	if k.reader == nil {
		return nil
	}
	return k.reader.Close()
}
