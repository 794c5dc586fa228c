// Package kafka publishes collection change events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"shelf/internal/domain"
	"shelf/internal/port"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer MessageWriter
}

// NewPublisher creates an EventPublisher writing to topic on brokers.
// Messages are keyed by collection id so one collection's events stay ordered
// within a partition.
func NewPublisher(brokers []string, topic string) port.EventPublisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	})
}

// NewPublisherWithWriter creates an EventPublisher on an existing writer.
func NewPublisherWithWriter(w MessageWriter) port.EventPublisher {
	return &kafkaPublisher{writer: w}
}

func (p *kafkaPublisher) PublishCollectionChanged(ctx context.Context, event *domain.CollectionChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka.PublishCollectionChanged: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CollectionID.String()),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("collection." + string(event.Change))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka.PublishCollectionChanged: %w", err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}
