package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// publishBatchTimeout caps how long a synchronous publish waits for more
// messages before flushing; kafka-go defaults to a full second.
const publishBatchTimeout = 10 * time.Millisecond

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              1,
		BatchTimeout:           publishBatchTimeout,
		WriteTimeout:           5 * time.Second,
	}
	return &KafkaPublisher{writer: w, now: time.Now}
}

func (p *KafkaPublisher) PublishCheckoutSessionCreated(ctx context.Context, evt CheckoutSessionCreated) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = p.now().UTC()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.CartID), // cart id keeps a cart's sessions ordered
		Value: payload,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(TypeCheckoutSessionCreated)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish checkout event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
