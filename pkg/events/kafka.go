package events

import (
	"context"

	"robopay/pkg/kafka"
	"robopay/pkg/logger"
)

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	producer messagePublisher
	source   string
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, source string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	msg, err := kafka.NewMessage().
		WithKey(e.Key).
		WithValue(e.Data).
		WithEventType(e.Type).
		WithCorrelationID(e.CorrelationID).
		WithSchemaVersion(SchemaVersion).
		WithSource(p.source).
		Build()
	if err != nil {
		p.log.Error("Failed to build event", "event_type", e.Type, "key", e.Key, "error", err)
		return
	}

	// The request context may already be cancelled once the response is written.
	if err := p.producer.Publish(context.WithoutCancel(ctx), msg); err != nil {
		p.log.Warn("Failed to publish event",
			"event_type", e.Type,
			"key", e.Key,
			"event_id", msg.GetEventID(),
			"error", err,
		)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
