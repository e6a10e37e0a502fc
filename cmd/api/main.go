package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/marketplace-ledger/internal/api"
	"github.com/example/marketplace-ledger/internal/api/middleware"
	"github.com/example/marketplace-ledger/internal/auth"
	"github.com/example/marketplace-ledger/internal/bootstrap"
	"github.com/example/marketplace-ledger/internal/command"
	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/dispatch"
	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/gateway"
	"github.com/example/marketplace-ledger/internal/infrastructure/eventbus"
	"github.com/example/marketplace-ledger/internal/infrastructure/kafka"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/example/marketplace-ledger/internal/notification"
	"github.com/example/marketplace-ledger/internal/projection"
	"github.com/example/marketplace-ledger/internal/query"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(true)
	if err != nil {
		log.Fatalf("[API] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("[API] %v", err)
	}
	log.Println("[API] Shut down cleanly")
}

func run(ctx context.Context, cfg config.Config) error {
	log.Println("[API] ========================================")
	log.Println("[API] Marketplace Ledger")
	log.Println("[API] ========================================")
	log.Printf("[API] Event bus:   %s %v", cfg.Kafka.Bus, cfg.Kafka.Brokers)
	log.Printf("[API] Event store: %s", cfg.Stores.EventStore)
	log.Printf("[API] Read store:  %s", cfg.Stores.ReadStore)
	log.Printf("[API] Inbox:       %s (embedded notifier: %t)", cfg.Stores.InboxStore, cfg.Notifier.Embedded)
	log.Printf("[API] Currency:    %s", cfg.Policy.Currency)

	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	readStore := res.ReadStore()
	projector := projection.NewProjector(readStore)

	ib, err := res.Inbox(ctx)
	if err != nil {
		return err
	}
	hub, err := dispatch.NewHub(ctx, ib)
	if err != nil {
		return err
	}
	notifier := notification.NewHandler(hub)

	// consumers start after replay so the read model is rebuilt first
	var consumers []func(context.Context) error
	var publisher store.Publisher
	switch cfg.Kafka.Bus {
	case "local":
		bus := eventbus.NewLocal()
		bus.Subscribe(projector.HandleEvent)
		if cfg.Notifier.Embedded {
			bus.Subscribe(notifier.HandleEvent)
		}
		publisher = bus
	default:
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer

		consumers = append(consumers, consumeFn(cfg, "api-projector", projector.HandleEvent))
		if cfg.Notifier.Embedded {
			consumers = append(consumers, consumeFn(cfg, "api-notifier", notifier.HandleEvent))
		}
	}

	eventStore, err := res.EventStore(ctx, publisher)
	if err != nil {
		return err
	}

	log.Printf("[API] Replaying events from %s event store...", cfg.Stores.EventStore)
	replayEvents(ctx, eventStore, projector)

	walletSvc := wallet.NewService(eventStore, cfg.Policy)
	orderSvc := order.NewService(eventStore)
	gw := gateway.NewSimulatedGateway(cfg.Payouts.SettleAfter)
	cmdHandler := command.NewHandler(orderSvc, walletSvc, gw)
	worker := gateway.NewPayoutWorker(walletSvc, gw, cfg.Payouts.PollInterval, gateway.DefaultBackoff())

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	handlers := api.NewHandlers(cmdHandler, query.NewHandler(readStore), walletSvc, hub)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handlers, jwtService, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, consume := range consumers {
		g.Go(func() error { return ignoreCanceled(consume(gctx)) })
	}
	g.Go(func() error {
		return ignoreCanceled(worker.Run(gctx))
	})
	g.Go(func() error {
		log.Printf("[API] Server started on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[API] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func consumeFn(cfg config.Config, group string, handler kafka.MessageHandler) func(context.Context) error {
	return func(ctx context.Context) error {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, group)
		defer consumer.Close()
		log.Printf("[API] Kafka consumer %s started", group)
		return consumer.Consume(ctx, handler)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// replayEvents feeds every stored event to the projector to rebuild read models
func replayEvents(ctx context.Context, eventStore store.EventStoreInterface, projector *projection.Projector) {
	events := eventStore.GetAllEvents()
	log.Printf("[API] Replaying %d events from event store...", len(events))

	for _, event := range events {
		data, err := event.MarshalJSON()
		if err != nil {
			log.Printf("[API] Error encoding event %s: %v", event.ID, err)
			continue
		}
		if err := projector.HandleEvent(ctx, []byte(event.AggregateID), data); err != nil {
			log.Printf("[API] Error replaying event %s: %v", event.ID, err)
		}
	}
	log.Println("[API] Event replay completed - read models rebuilt")
}
