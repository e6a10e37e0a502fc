package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	snapshot, err := NewSnapshot("Account", "buyer-1", 20, map[string]int64{"balance": 500})

	require.NoError(t, err)
	assert.Equal(t, "buyer-1", snapshot.AggregateID)
	assert.Equal(t, "Account", snapshot.AggregateType)
	assert.Equal(t, 20, snapshot.Version)
	assert.JSONEq(t, `{"balance":500}`, string(snapshot.State))
	assert.NotZero(t, snapshot.CreatedAt)
}

func TestNewSnapshot_UnencodableState(t *testing.T) {
	_, err := NewSnapshot("Order", "order-1", 10, make(chan int))

	assert.ErrorContains(t, err, "encode Order order-1 state")
}

func TestSnapshotDue(t *testing.T) {
	tests := []struct {
		from, to int
		want     bool
	}{
		{0, 0, false},
		{0, 9, false},
		{9, 10, true},
		{8, 12, true},
		{10, 11, false},
		{19, 21, true},
		{12, 12, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SnapshotDue(tt.from, tt.to), "%d -> %d", tt.from, tt.to)
	}
}

func TestEventStore_SnapshotIsCopied(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	original := &Snapshot{AggregateID: "order-1", AggregateType: "Order", Version: 10, State: json.RawMessage(`{}`)}

	require.NoError(t, es.SaveSnapshot(ctx, original))
	original.Version = 99

	loaded, err := es.GetSnapshot(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Version)

	missing, err := es.GetSnapshot(ctx, "order-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
