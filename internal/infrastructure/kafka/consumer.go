package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

const (
	defaultAttempts     = 3
	defaultRetryBackoff = 200 * time.Millisecond
)

// Consumer reads a topic in a consumer group. An offset is committed only
// after the handler has seen the message, so delivery is at-least-once.
type Consumer struct {
	reader   *kafka.Reader
	name     string
	attempts int
	backoff  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, name: groupID, attempts: defaultAttempts, backoff: defaultRetryBackoff}
}

func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] %s: error reading message: %v", c.name, err)
			continue
		}

		if err := handleWithRetry(ctx, handler, msg.Key, msg.Value, c.attempts, c.backoff); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] %s: giving up on message at offset %d (partition %d): %v", c.name, msg.Offset, msg.Partition, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] %s: commit offset %d: %v", c.name, msg.Offset, err)
		}
	}
}

// handleWithRetry calls handler up to attempts times, doubling the pause
// between tries. It returns the last error.
func handleWithRetry(ctx context.Context, handler MessageHandler, key, value []byte, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = handler(ctx, key, value); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << i):
		}
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
