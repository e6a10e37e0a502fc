package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/segmentio/kafka-go"
)

// Producer publishes committed events keyed by aggregate id. The hash
// balancer keeps every event of one aggregate on one partition, in order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", key, err)
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headersFor(event),
		Time:    time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", key, p.writer.Topic, err)
	}
	return nil
}

// headersFor lets consumers route stored events without decoding the body
func headersFor(event any) []kafka.Header {
	e, ok := event.(store.Event)
	if !ok {
		return nil
	}
	return []kafka.Header{
		{Key: "event_id", Value: []byte(e.ID)},
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "aggregate_type", Value: []byte(e.AggregateType)},
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
