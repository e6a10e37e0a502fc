package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_DeliversToEveryHandlerInOrder(t *testing.T) {
	bus := NewLocal()
	var calls []string

	bus.Subscribe(func(ctx context.Context, key, value []byte) error {
		calls = append(calls, "first:"+string(key))
		return errors.New("projector down")
	})
	bus.Subscribe(func(ctx context.Context, key, value []byte) error {
		var e store.Event
		require.NoError(t, json.Unmarshal(value, &e))
		calls = append(calls, "second:"+e.EventType)
		return nil
	})

	err := bus.Publish(context.Background(), "order-1", store.Event{AggregateID: "order-1", EventType: "OrderPlaced"})

	require.NoError(t, err, "handler errors are logged, not returned")
	assert.Equal(t, []string{"first:order-1", "second:OrderPlaced"}, calls)
}

func TestLocal_EventStorePublishesThroughBus(t *testing.T) {
	bus := NewLocal()
	var got []string
	bus.Subscribe(func(ctx context.Context, key, value []byte) error {
		got = append(got, string(key))
		return nil
	})
	es := store.NewEventStore(bus)

	_, err := es.AppendAll(context.Background(), []store.PendingEvent{
		{AggregateID: "acct-1", AggregateType: "Account", EventType: "AccountOpened", Data: map[string]string{}},
		{AggregateID: "acct-2", AggregateType: "Account", EventType: "AccountOpened", Data: map[string]string{}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"acct-1", "acct-2"}, got)
}

func TestLocal_UnencodableEvent(t *testing.T) {
	bus := NewLocal()

	err := bus.Publish(context.Background(), "k", make(chan int))

	assert.Error(t, err)
}
