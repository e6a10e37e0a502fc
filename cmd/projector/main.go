package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/example/marketplace-ledger/internal/bootstrap"
	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/infrastructure/kafka"
	"github.com/example/marketplace-ledger/internal/projection"
)

func main() {
	cfg, err := config.Load(false)
	if err != nil {
		log.Fatalf("[Projector] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerGroup := cfg.Kafka.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "projector"
	}

	log.Println("[Projector] ========================================")
	log.Println("[Projector] Marketplace Ledger - CQRS Projector")
	log.Println("[Projector] ========================================")
	log.Printf("[Projector] Kafka: %v", cfg.Kafka.Brokers)
	log.Printf("[Projector] Topic: %s", cfg.Kafka.Topic)
	log.Printf("[Projector] Group: %s", consumerGroup)
	log.Printf("[Projector] Read store: %s", cfg.Stores.ReadStore)

	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("[Projector] %v", err)
	}
	defer res.Close()

	projector := projection.NewProjector(res.ReadStore())

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, consumerGroup)
	defer consumer.Close()

	log.Println("[Projector] Starting event consumer...")
	if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Projector] Consumer error: %v", err)
	}
	log.Println("[Projector] Shutting down...")
}
