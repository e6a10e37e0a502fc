// Package eventbus provides an in-process stand-in for the Kafka topic so the
// API, notifier and projector can run as one binary.
package eventbus

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/example/marketplace-ledger/internal/infrastructure/kafka"
)

// Local delivers each published event to every registered handler, in
// registration order, before Publish returns.
type Local struct {
	mu       sync.RWMutex
	handlers []kafka.MessageHandler
}

func NewLocal() *Local {
	return &Local{}
}

// Subscribe registers a handler with the same signature a Kafka consumer uses
func (b *Local) Subscribe(handler kafka.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Local) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := append([]kafka.MessageHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, []byte(key), data); err != nil {
			log.Printf("[EventBus] Error handling message %s: %v", key, err)
		}
	}
	return nil
}
