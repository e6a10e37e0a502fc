// Package bootstrap opens the backing services named in the configuration
// and builds the stores every binary shares.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/inbox"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/redis/go-redis/v9"
)

// Resources holds the connections opened for one process
type Resources struct {
	cfg   config.Config
	DB    *sql.DB
	Redis *redis.Client
}

func usesPostgres(s config.StoreConfig) bool {
	return s.EventStore == "postgres" || s.ReadStore == "postgres" || s.InboxStore == "postgres"
}

// Open connects to PostgreSQL and Redis when a configured store needs them
func Open(ctx context.Context, cfg config.Config) (*Resources, error) {
	r := &Resources{cfg: cfg}

	if usesPostgres(cfg.Stores) {
		db, err := store.ConnectPostgres(cfg.Stores.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		r.DB = db
		if err := store.Migrate(ctx, db); err != nil {
			r.Close()
			return nil, err
		}
		log.Println("[Bootstrap] Connected to PostgreSQL")
	}

	if cfg.Stores.InboxStore == "redis" {
		r.Redis = redis.NewClient(&redis.Options{Addr: cfg.Stores.RedisAddr})
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			r.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Stores.RedisAddr, err)
		}
		log.Printf("[Bootstrap] Connected to Redis at %s", cfg.Stores.RedisAddr)
	}

	return r, nil
}

func (r *Resources) Close() {
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
}

// EventStore builds the configured event store. DynamoDB does not publish
// itself; its table stream feeds the lambda consumers instead.
func (r *Resources) EventStore(ctx context.Context, publisher store.Publisher) (store.EventStoreInterface, error) {
	switch r.cfg.Stores.EventStore {
	case "memory":
		return store.NewEventStore(publisher), nil
	case "postgres":
		return store.NewPostgresEventStore(r.DB, publisher), nil
	case "dynamodb":
		client, err := newDynamoClient(ctx, r.cfg.Dynamo)
		if err != nil {
			return nil, err
		}
		return store.NewDynamoEventStore(client, r.cfg.Dynamo.EventsTable, r.cfg.Dynamo.SnapshotsTable), nil
	}
	return nil, fmt.Errorf("unknown event store %q", r.cfg.Stores.EventStore)
}

func newDynamoClient(ctx context.Context, cfg config.DynamoConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func (r *Resources) ReadStore() store.ReadStoreInterface {
	if r.cfg.Stores.ReadStore == "postgres" {
		return store.NewPostgresReadStore(r.DB)
	}
	return store.NewReadStore()
}

func (r *Resources) Inbox(ctx context.Context) (inbox.Store, error) {
	switch r.cfg.Stores.InboxStore {
	case "memory":
		return inbox.NewMemoryStore(r.cfg.Stores.InboxCap), nil
	case "postgres":
		s := inbox.NewPostgresStore(r.DB, r.cfg.Stores.InboxCap)
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate inbox: %w", err)
		}
		return s, nil
	case "redis":
		return inbox.NewRedisStore(r.Redis, r.cfg.Stores.InboxCap), nil
	}
	return nil, fmt.Errorf("unknown inbox store %q", r.cfg.Stores.InboxStore)
}
