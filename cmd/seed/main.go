package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/marketplace-ledger/internal/auth"
	"github.com/example/marketplace-ledger/internal/bootstrap"
	"github.com/example/marketplace-ledger/internal/command"
	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/fixtures"
	"github.com/example/marketplace-ledger/internal/gateway"
	"github.com/example/marketplace-ledger/internal/infrastructure/kafka"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type credential struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// run loads demo wallets and orders into the configured stores and prints an
// access token for every generated user.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	opts := fixtures.DefaultOptions()
	var (
		seed       uint64
		tokensOnly bool
	)
	cmd.Uint64Var(&seed, "seed", 1, "Random seed; the same seed yields the same data")
	cmd.IntVar(&opts.Producers, "producers", opts.Producers, "Number of producers")
	cmd.IntVar(&opts.Buyers, "buyers", opts.Buyers, "Number of buyers")
	cmd.IntVar(&opts.Couriers, "couriers", opts.Couriers, "Number of couriers")
	cmd.IntVar(&opts.Orders, "orders", opts.Orders, "Number of orders")
	cmd.BoolVar(&tokensOnly, "tokens-only", false, "Only print access tokens, load nothing")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(true)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	scenario, err := fixtures.NewGenerator(seed).Scenario(opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if !tokensOnly {
		if err := load(ctx, cfg, scenario); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	actors := append(scenario.Actors(), order.Actor{ID: "admin-1", Role: order.RoleAdmin})
	creds := make([]credential, 0, len(actors))
	for _, a := range actors {
		token, expiresAt, err := jwtService.GenerateAccessToken(a.ID, string(a.Role))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: token for %s: %v\n", a.ID, err)
			return 1
		}
		creds = append(creds, credential{UserID: a.ID, Role: string(a.Role), Token: token, ExpiresAt: expiresAt})
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(creds); err != nil {
		return 1
	}
	return 0
}

func load(ctx context.Context, cfg config.Config, scenario fixtures.Scenario) error {
	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	// with the local bus nobody else is listening; the API replays the
	// stored events into its read model on start
	var publisher store.Publisher
	if cfg.Kafka.Bus == "kafka" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
	}

	eventStore, err := res.EventStore(ctx, publisher)
	if err != nil {
		return err
	}

	walletSvc := wallet.NewService(eventStore, cfg.Policy)
	handler := command.NewHandler(order.NewService(eventStore), walletSvc, gateway.NewSimulatedGateway(0))

	summary, err := fixtures.NewLoader(handler, cfg.Policy.Currency).Load(ctx, scenario)
	if err != nil {
		return err
	}
	for status, n := range summary.Orders {
		log.Printf("[Seed] %-10s %d", status, n)
	}
	return nil
}
