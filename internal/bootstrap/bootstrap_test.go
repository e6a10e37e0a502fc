package bootstrap

import (
	"context"
	"testing"

	"github.com/example/marketplace-ledger/internal/config"
	"github.com/example/marketplace-ledger/internal/inbox"
	"github.com/example/marketplace-ledger/internal/infrastructure/eventbus"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	return config.Config{Stores: config.StoreConfig{
		EventStore: "memory",
		ReadStore:  "memory",
		InboxStore: "memory",
		InboxCap:   10,
	}}
}

func TestOpen_MemoryNeedsNoConnections(t *testing.T) {
	ctx := context.Background()

	res, err := Open(ctx, memoryConfig())
	require.NoError(t, err)
	defer res.Close()

	assert.Nil(t, res.DB)
	assert.Nil(t, res.Redis)

	es, err := res.EventStore(ctx, eventbus.NewLocal())
	require.NoError(t, err)
	assert.IsType(t, &store.EventStore{}, es)
	assert.IsType(t, &store.ReadStore{}, res.ReadStore())

	ib, err := res.Inbox(ctx)
	require.NoError(t, err)
	assert.IsType(t, &inbox.MemoryStore{}, ib)
}

func TestResources_UnknownStores(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Stores.EventStore = "mongo"
	cfg.Stores.InboxStore = "kafka"
	res := &Resources{cfg: cfg}

	_, err := res.EventStore(ctx, nil)
	assert.Error(t, err)

	_, err = res.Inbox(ctx)
	assert.Error(t, err)
}

func TestUsesPostgres(t *testing.T) {
	assert.False(t, usesPostgres(memoryConfig().Stores))
	assert.True(t, usesPostgres(config.StoreConfig{ReadStore: "postgres"}))
	assert.True(t, usesPostgres(config.StoreConfig{InboxStore: "postgres"}))
}
