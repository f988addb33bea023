package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"stock-threshold-alerts/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOptions configure the event publisher.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// KafkaSink publishes every committed alert event, keyed by symbol.
type KafkaSink struct {
	writer MessageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaWriter builds a synchronous writer for opts.
func NewKafkaWriter(opts KafkaOptions) *kafka.Writer {
	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink wraps writer.
func NewKafkaSink(writer MessageWriter, topic string, logger zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		topic:  topic,
		logger: logger.With().Str("component", "history_kafka").Logger(),
	}
}

// Append publishes events in order as one batch.
func (k *KafkaSink) Append(ctx context.Context, events []domain.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode alert event %s: %w", ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Symbol),
			Value: payload,
			Time:  ev.At,
			Headers: []kafka.Header{
				{Key: "direction", Value: []byte(ev.Direction)},
			},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish alert events to %s: %w", k.topic, err)
	}
	k.logger.Debug().Int("events", len(msgs)).Str("topic", k.topic).Msg("alert events published")
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

var (
	_ Sink          = (*KafkaSink)(nil)
	_ MessageWriter = (*kafka.Writer)(nil)
)
