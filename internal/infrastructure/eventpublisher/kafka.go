package eventpublisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/iho/goescrow/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outbox events to one topic per aggregate type,
// keyed by aggregate id so that events of one aggregate stay ordered.
type KafkaPublisher struct {
	writer      MessageWriter
	topicPrefix string
}

// envelope is the message value.
type envelope struct {
	ID            string         `json:"id"`
	EventType     string         `json:"event_type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewKafkaPublisher creates a publisher writing to brokers.
func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}

	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, topicPrefix), nil
}

// NewKafkaPublisherWithWriter creates a publisher on an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topicPrefix: topicPrefix}
}

// Publish writes event and waits for the brokers to acknowledge it.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	value, err := json.Marshal(envelope{
		ID:            event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		CreatedAt:     event.CreatedAt,
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topic(event),
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	})
}

// Topic returns the topic event is written to.
func (p *KafkaPublisher) Topic(event *domain.OutboxEvent) string {
	if p.topicPrefix == "" {
		return event.AggregateType
	}
	return p.topicPrefix + "." + event.AggregateType
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
