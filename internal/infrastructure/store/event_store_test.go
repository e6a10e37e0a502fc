package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event.(Event))
	return p.err
}

func TestEventStore_Append_AssignsVersionsPerAggregate(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	e1, err := es.Append(ctx, "order-1", "Order", "OrderPlaced", map[string]string{"id": "order-1"})
	require.NoError(t, err)
	e2, err := es.Append(ctx, "order-1", "Order", "OrderAccepted", map[string]string{"id": "order-1"})
	require.NoError(t, err)
	e3, err := es.Append(ctx, "order-2", "Order", "OrderPlaced", map[string]string{"id": "order-2"})
	require.NoError(t, err)

	assert.Equal(t, 1, e1.Version)
	assert.Equal(t, 2, e2.Version)
	assert.Equal(t, 1, e3.Version)
	assert.NotEqual(t, e1.ID, e2.ID)

	assert.Len(t, es.GetEvents("order-1"), 2)
	assert.Len(t, es.GetEvents("order-2"), 1)
}

func TestEventStore_AppendAll_SpansAggregates(t *testing.T) {
	pub := &recordingPublisher{}
	es := NewEventStore(pub)
	ctx := context.Background()

	_, err := es.Append(ctx, "acct-a", "Account", "AccountOpened", nil)
	require.NoError(t, err)

	stored, err := es.AppendAll(ctx, []PendingEvent{
		{AggregateID: "acct-a", AggregateType: "Account", EventType: "EscrowSettled", Data: 1},
		{AggregateID: "acct-b", AggregateType: "Account", EventType: "ProceedsCredited", Data: 2},
		{AggregateID: "acct-a", AggregateType: "Account", EventType: "PointsAccrued", Data: 3},
	})
	require.NoError(t, err)
	require.Len(t, stored, 3)

	assert.Equal(t, 2, stored[0].Version)
	assert.Equal(t, 1, stored[1].Version)
	assert.Equal(t, 3, stored[2].Version)

	all := es.GetAllEvents()
	require.Len(t, all, 4)
	assert.Equal(t, "AccountOpened", all[0].EventType)
	assert.Equal(t, "PointsAccrued", all[3].EventType)

	assert.Equal(t, []string{"acct-a", "acct-a", "acct-b", "acct-a"}, pub.keys)
}

func TestEventStore_PublishFailureDoesNotUndoCommit(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	es := NewEventStore(pub)

	e, err := es.Append(context.Background(), "order-1", "Order", "OrderPlaced", nil)

	require.NoError(t, err)
	assert.Equal(t, 1, e.Version)
	assert.Len(t, es.GetEvents("order-1"), 1)
}

func TestEventStore_GetEventsFromVersion(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := es.Append(ctx, "acct-1", "Account", "FundsToppedUp", i)
		require.NoError(t, err)
	}

	events := es.GetEventsFromVersion(ctx, "acct-1", 3)

	require.Len(t, events, 2)
	assert.Equal(t, 4, events[0].Version)
	assert.Equal(t, 5, events[1].Version)
}

func TestEventStore_Snapshots(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	s, err := es.GetSnapshot(ctx, "acct-1")
	require.NoError(t, err)
	assert.Nil(t, s)

	state, err := json.Marshal(map[string]any{"id": "acct-1", "balance": 1000})
	require.NoError(t, err)

	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
		AggregateID:   "acct-1",
		AggregateType: "Account",
		Version:       10,
		State:         state,
		CreatedAt:     time.Now(),
	}))

	s, err = es.GetSnapshot(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 10, s.Version)
	assert.JSONEq(t, string(state), string(s.State))
}

func TestEventStore_MarshalJSON(t *testing.T) {
	e := Event{
		ID:            "event-1",
		AggregateID:   "order-1",
		AggregateType: "Order",
		EventType:     "OrderPlaced",
		Data:          json.RawMessage(`{"order_id":"order-1"}`),
		Version:       1,
	}

	data, err := e.MarshalJSON()
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.JSONEq(t, string(e.Data), string(decoded.Data))
}
