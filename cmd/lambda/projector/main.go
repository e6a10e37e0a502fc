package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/marketplace-ledger/internal/bootstrap"
	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/infrastructure/kinesis"
	"github.com/example/marketplace-ledger/internal/projection"
)

var projector *projection.Projector

func init() {
	cfg, err := config.Load(false)
	if err != nil {
		log.Fatalf("[Lambda Projector] %v", err)
	}
	// A memory read store would vanish with the container.
	if cfg.Stores.ReadStore != "postgres" {
		log.Fatal("[Lambda Projector] READ_STORE must be postgres")
	}

	res, err := bootstrap.Open(context.Background(), cfg)
	if err != nil {
		log.Fatalf("[Lambda Projector] %v", err)
	}
	projector = projection.NewProjector(res.ReadStore())

	log.Println("[Lambda Projector] Initialized successfully")
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.HandleBatch(ctx, "Lambda Projector", batch, projector.HandleEvent), nil
}

func main() {
	lambda.Start(handler)
}
