package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{writer: writer}
}

// envelope carries the event's type alongside its payload so a single
// topic/consumer group can carry both event kinds.
type envelope struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

func (p *Producer) PublishAdmissionDecided(ctx context.Context, event *AdmissionDecidedEvent) error {
	return p.publish(ctx, event.Identifier, EventAdmissionDecided, event)
}

func (p *Producer) PublishReputationClassified(ctx context.Context, event *ReputationClassifiedEvent) error {
	return p.publish(ctx, event.Address, EventReputationClassified, event)
}

func (p *Producer) publish(ctx context.Context, key string, eventType EventType, payload interface{}) error {
	data, err := json.Marshal(envelope{Type: eventType, Payload: payload})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
