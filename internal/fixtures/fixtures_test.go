package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/marketplace-ledger/internal/command"
	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/gateway"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }

func TestScenario_SameSeedSameData(t *testing.T) {
	a, err := NewGenerator(42).WithClock(fixedNow).Scenario(DefaultOptions())
	require.NoError(t, err)
	b, err := NewGenerator(42).WithClock(fixedNow).Scenario(DefaultOptions())
	require.NoError(t, err)
	c, err := NewGenerator(43).WithClock(fixedNow).Scenario(DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Orders, c.Orders)
}

func TestScenario_Shape(t *testing.T) {
	opts := Options{Producers: 2, Buyers: 3, Couriers: 1, Orders: 40}
	s, err := NewGenerator(7).WithClock(fixedNow).Scenario(opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"producer-1", "producer-2"}, s.Producers)
	assert.Equal(t, []string{"courier-1"}, s.Couriers)
	assert.Len(t, s.Actors(), 6)
	require.Len(t, s.Orders, 40)

	needed := make(map[string]int64)
	for _, o := range s.Orders {
		require.NotEmpty(t, o.Command.Items)
		assert.Contains(t, catalogue, o.Command.Category)
		assert.True(t, o.Command.EstimatedDeliveryAt.After(fixedNow()))
		for _, item := range o.Command.Items {
			assert.Positive(t, item.Quantity)
			assert.Positive(t, item.UnitPrice)
		}
		if o.Stage == order.StatusPending || o.Stage == order.StatusCancelled {
			assert.Empty(t, o.CourierID)
		} else {
			assert.Equal(t, "courier-1", o.CourierID)
		}
		needed[o.BuyerID] += total(o.Command.Items)
	}
	for _, buyer := range s.Buyers {
		assert.Greater(t, s.TopUps[buyer], needed[buyer], buyer)
	}
}

func TestScenario_RejectsEmptyCast(t *testing.T) {
	_, err := NewGenerator(1).Scenario(Options{Producers: 1, Buyers: 0, Couriers: 1})
	assert.Error(t, err)
}

func TestLoader_LoadsThroughCommands(t *testing.T) {
	ctx := context.Background()
	es := store.NewEventStore(nil)
	wallets := wallet.NewService(es, wallet.DefaultPolicy())
	handler := command.NewHandler(order.NewService(es), wallets, gateway.NewSimulatedGateway(0))

	s, err := NewGenerator(2024).Scenario(DefaultOptions())
	require.NoError(t, err)

	summary, err := NewLoader(handler, "USD").Load(ctx, s)

	require.NoError(t, err)
	assert.Equal(t, len(s.Actors()), summary.Wallets)
	assert.Len(t, summary.OrderIDs, len(s.Orders))

	want := make(map[order.Status]int)
	var delivered int64
	for _, o := range s.Orders {
		want[o.Stage]++
		if o.Stage == order.StatusDelivered {
			delivered += total(o.Command.Items)
		}
	}
	assert.Equal(t, want, summary.Orders)

	var proceeds int64
	for _, id := range s.Producers {
		acct, err := wallets.Get(ctx, id)
		require.NoError(t, err)
		require.NoError(t, acct.CheckInvariants())
		proceeds += acct.Balance
	}
	assert.Equal(t, delivered, proceeds, "producers hold exactly the delivered order totals")

	for _, id := range s.Buyers {
		acct, err := wallets.Get(ctx, id)
		require.NoError(t, err)
		require.NoError(t, acct.CheckInvariants())
	}
}
