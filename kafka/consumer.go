package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader  *kafka.Reader
	handler EventHandler
}

// EventHandler is the capability set a consumer needs; DefaultEventHandler
// only logs, and another implementation can be passed to NewConsumer
// without touching this package.
type EventHandler interface {
	HandleAdmissionDecided(ctx context.Context, event *AdmissionDecidedEvent) error
	HandleReputationClassified(ctx context.Context, event *ReputationClassifiedEvent) error
}

func NewConsumer(brokers []string, topic string, groupID string, handler EventHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	return &Consumer{
		reader:  reader,
		handler: handler,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := c.reader.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("error reading message: %v", err)
					continue
				}

				var env struct {
					Type    EventType       `json:"type"`
					Payload json.RawMessage `json:"payload"`
				}
				if err := json.Unmarshal(msg.Value, &env); err != nil {
					log.Printf("error unmarshaling event: %v", err)
					continue
				}

				if err := c.dispatch(ctx, env.Type, env.Payload); err != nil {
					log.Printf("error handling event: %v", err)
				}
			}
		}
	}()
}

func (c *Consumer) dispatch(ctx context.Context, eventType EventType, payload json.RawMessage) error {
	switch eventType {
	case EventAdmissionDecided:
		var event AdmissionDecidedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		return c.handler.HandleAdmissionDecided(ctx, &event)
	case EventReputationClassified:
		var event ReputationClassifiedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		return c.handler.HandleReputationClassified(ctx, &event)
	default:
		log.Printf("ignoring event of unknown type %q", eventType)
		return nil
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DefaultEventHandler logs every event and does nothing else; it is the
// handler main wires into the consumer.
type DefaultEventHandler struct{}

func (h *DefaultEventHandler) HandleAdmissionDecided(ctx context.Context, event *AdmissionDecidedEvent) error {
	log.Printf("admission decided: identifier=%s allowed=%t reason=%s", event.Identifier, event.Allowed, event.Reason)
	return nil
}

func (h *DefaultEventHandler) HandleReputationClassified(ctx context.Context, event *ReputationClassifiedEvent) error {
	log.Printf("reputation classified: address=%s type=%s confidence=%d", event.Address, event.Type, event.Confidence)
	return nil
}
