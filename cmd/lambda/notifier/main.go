package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/marketplace-ledger/internal/bootstrap"
	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/dispatch"
	"github.com/example/marketplace-ledger/internal/infrastructure/kinesis"
	"github.com/example/marketplace-ledger/internal/notification"
)

// The function must run with a reserved concurrency of one: the hub numbers
// notifications from the inbox's last sequence when the container starts.
var notifier *notification.Handler

func init() {
	ctx := context.Background()

	cfg, err := config.Load(false)
	if err != nil {
		log.Fatalf("[Lambda Notifier] %v", err)
	}
	if cfg.Stores.InboxStore == "memory" {
		log.Fatal("[Lambda Notifier] INBOX_STORE must be postgres or redis")
	}

	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("[Lambda Notifier] %v", err)
	}
	ib, err := res.Inbox(ctx)
	if err != nil {
		log.Fatalf("[Lambda Notifier] %v", err)
	}
	hub, err := dispatch.NewHub(ctx, ib)
	if err != nil {
		log.Fatalf("[Lambda Notifier] %v", err)
	}
	notifier = notification.NewHandler(hub)

	log.Printf("[Lambda Notifier] Initialized successfully (inbox: %s)", cfg.Stores.InboxStore)
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.HandleBatch(ctx, "Lambda Notifier", batch, notifier.HandleEvent), nil
}

func main() {
	lambda.Start(handler)
}
