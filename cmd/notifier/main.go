package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/example/marketplace-ledger/internal/bootstrap"
	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/dispatch"
	"github.com/example/marketplace-ledger/internal/infrastructure/kafka"
	"github.com/example/marketplace-ledger/internal/notification"
)

func main() {
	cfg, err := config.Load(false)
	if err != nil {
		log.Fatalf("[Notifier] %v", err)
	}
	if cfg.Notifier.Embedded {
		log.Println("[Notifier] Warning: EMBEDDED_NOTIFIER is on; the API is also writing to the inbox")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerGroup := cfg.Kafka.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "notifier"
	}

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Marketplace Ledger - Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", cfg.Kafka.Brokers)
	log.Printf("[Notifier] Topic: %s", cfg.Kafka.Topic)
	log.Printf("[Notifier] Group: %s", consumerGroup)
	log.Printf("[Notifier] Inbox: %s (cap %d)", cfg.Stores.InboxStore, cfg.Stores.InboxCap)

	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("[Notifier] %v", err)
	}
	defer res.Close()

	ib, err := res.Inbox(ctx)
	if err != nil {
		log.Fatalf("[Notifier] %v", err)
	}
	hub, err := dispatch.NewHub(ctx, ib)
	if err != nil {
		log.Fatalf("[Notifier] %v", err)
	}
	handler := notification.NewHandler(hub)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, consumerGroup)
	defer consumer.Close()

	log.Println("[Notifier] Starting event consumer...")
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Notifier] Consumer error: %v", err)
	}
	log.Println("[Notifier] Shutting down...")
}
