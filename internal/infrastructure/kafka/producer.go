package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/internal/config"
)

// Producer publishes relationship events for downstream consumers.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
	topic  string
}

// NewProducer creates a producer writing to cfg.Topic on cfg.Brokers.
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close flushes pending writes and closes the producer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// PublishRelationshipEvent writes one event keyed by its source entity so that
// events about the same entity stay ordered within a partition.
func (p *Producer) PublishRelationshipEvent(ctx context.Context, event domain.RelationshipEvent) error {
	msg, err := relationshipMessage(p.topic, event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish relationship event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("published relationship event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.EventType)),
		zap.String("relationship_type", string(event.RelationshipType)),
	)
	return nil
}

func relationshipMessage(topic string, event domain.RelationshipEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.SourceEntity.ID),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "relationship_type", Value: []byte(event.RelationshipType)},
			{Key: "source_type", Value: []byte(event.SourceEntity.Type)},
			{Key: "target_type", Value: []byte(event.TargetEntity.Type)},
		},
	}, nil
}
