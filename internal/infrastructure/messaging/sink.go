// Package messaging delivers relayed outbox messages to their destination.
package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"clientregistry/internal/infrastructure/storage/postgres"
	"clientregistry/pkg/logger"
)

// MessageWriter is the part of *kafkago.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// KafkaSink publishes outbox messages to one topic keyed by client id, so
// events of one client stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

var _ postgres.OutboxHandler = (*KafkaSink)(nil)

// NewKafkaWriter creates a synchronous writer with hash partitioning.
func NewKafkaWriter(cfg KafkaConfig) *kafkago.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaSink creates a sink writing to topic.
func NewKafkaSink(writer MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic}
}

// Handle implements postgres.OutboxHandler.
func (s *KafkaSink) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if err := s.writer.WriteMessages(ctx, toKafkaMessage(s.topic, msg)); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func toKafkaMessage(topic string, msg *postgres.OutboxMessage) kafkago.Message {
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(msg.AggregateID, 10)),
		Value: msg.Payload,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(msg.ID.String())},
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "aggregate_type", Value: []byte(msg.AggregateType)},
		},
		Time: msg.CreatedAt,
	}
}

// LogSink writes messages to the structured log. Used when no broker is configured.
type LogSink struct {
	log *logger.Logger
}

var _ postgres.OutboxHandler = (*LogSink)(nil)

// NewLogSink creates a log sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("outbox.log_sink")}
}

// Handle implements postgres.OutboxHandler.
func (s *LogSink) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	s.log.WithContext(ctx).Infow("client event",
		"event_id", msg.ID.String(),
		"event_type", msg.EventType,
		"client_id", msg.AggregateID,
		"payload", string(msg.Payload),
	)
	return nil
}
