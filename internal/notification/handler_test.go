package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/marketplace-ledger/internal/dispatch"
	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/inbox"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDispatcher records Publish calls
type mockDispatcher struct {
	calls []publishCall
	err   error
}

type publishCall struct {
	event      inbox.NotificationEvent
	recipients []string
}

func (m *mockDispatcher) Publish(_ context.Context, e inbox.NotificationEvent, recipients ...string) ([]inbox.NotificationEvent, error) {
	m.calls = append(m.calls, publishCall{event: e, recipients: recipients})
	if m.err != nil {
		return nil, m.err
	}
	return nil, nil
}

var ts = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func encode(t *testing.T, aggregateType, aggregateID, eventType string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	value, err := json.Marshal(store.Event{
		ID:            "evt-" + eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     ts,
		Version:       1,
	})
	require.NoError(t, err)
	return value
}

func TestHandleEvent_OrderEventsReachAllParties(t *testing.T) {
	tests := []struct {
		name           string
		eventType      string
		data           any
		wantRecipients []string
		wantPriority   inbox.Priority
	}{
		{
			name:           "placed before a courier claims it",
			eventType:      order.EventOrderPlaced,
			data:           order.OrderPlaced{Parties: order.Parties{ProducerID: "p-1", BuyerID: "b-1"}, OrderID: "o-1"},
			wantRecipients: []string{"p-1", "b-1"},
			wantPriority:   inbox.PriorityMedium,
		},
		{
			name:           "picked up",
			eventType:      order.EventOrderPickedUp,
			data:           order.OrderPickedUp{Parties: order.Parties{ProducerID: "p-1", BuyerID: "b-1", CourierID: "c-1"}, OrderID: "o-1"},
			wantRecipients: []string{"p-1", "b-1", "c-1"},
			wantPriority:   inbox.PriorityLow,
		},
		{
			name:           "delivered",
			eventType:      order.EventOrderDelivered,
			data:           order.OrderDelivered{Parties: order.Parties{ProducerID: "p-1", BuyerID: "b-1", CourierID: "c-1"}, OrderID: "o-1"},
			wantRecipients: []string{"p-1", "b-1", "c-1"},
			wantPriority:   inbox.PriorityHigh,
		},
		{
			name:           "cancelled",
			eventType:      order.EventOrderCancelled,
			data:           order.OrderCancelled{Parties: order.Parties{ProducerID: "p-1", BuyerID: "b-1", CourierID: "c-1"}, OrderID: "o-1"},
			wantRecipients: []string{"p-1", "b-1", "c-1"},
			wantPriority:   inbox.PriorityUrgent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{}
			h := NewHandler(d)

			err := h.HandleEvent(context.Background(), []byte("o-1"), encode(t, order.AggregateType, "o-1", tt.eventType, tt.data))

			require.NoError(t, err)
			require.Len(t, d.calls, 1)
			call := d.calls[0]
			assert.Equal(t, tt.wantRecipients, call.recipients)
			assert.Equal(t, inbox.TypeOrder, call.event.Type)
			assert.Equal(t, tt.wantPriority, call.event.Priority)
			assert.Equal(t, "evt-"+tt.eventType, call.event.SourceEventID)
			assert.Equal(t, ts, call.event.Timestamp)
		})
	}
}

func TestHandleEvent_WalletEventsReachOwner(t *testing.T) {
	d := &mockDispatcher{}
	h := NewHandler(d)
	entry := wallet.LedgerEntry{Transaction: wallet.Transaction{ID: "wd-1", Amount: 400}}

	err := h.HandleEvent(context.Background(), []byte("b-1"), encode(t, wallet.AggregateType, "b-1", wallet.EventWithdrawalRequested, entry))

	require.NoError(t, err)
	require.Len(t, d.calls, 1)
	assert.Equal(t, []string{"b-1"}, d.calls[0].recipients)
	assert.Equal(t, inbox.TypePayment, d.calls[0].event.Type)
	assert.Equal(t, inbox.PriorityUrgent, d.calls[0].event.Priority)

	var payload struct {
		EventType string             `json:"event_type"`
		Data      wallet.LedgerEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(d.calls[0].event.Payload, &payload))
	assert.Equal(t, wallet.EventWithdrawalRequested, payload.EventType)
	assert.Equal(t, int64(400), payload.Data.Transaction.Amount)
}

func TestHandleEvent_RewardRedemptionIsSystem(t *testing.T) {
	n, recipients, err := Translate(store.Event{
		ID:            "evt-1",
		AggregateID:   "b-1",
		AggregateType: wallet.AggregateType,
		EventType:     wallet.EventRewardRedeemed,
		Data:          []byte(`{}`),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"b-1"}, recipients)
	assert.Equal(t, inbox.TypeSystem, n.Type)
}

func TestHandleEvent_SilentEvents(t *testing.T) {
	d := &mockDispatcher{}
	h := NewHandler(d)
	ctx := context.Background()

	require.NoError(t, h.HandleEvent(ctx, nil, encode(t, wallet.AggregateType, "b-1", wallet.EventPINSet, wallet.PINSet{})))
	require.NoError(t, h.HandleEvent(ctx, nil, encode(t, wallet.AggregateType, "b-1", wallet.EventPaymentMethodAdded, wallet.PaymentMethodAdded{})))
	require.NoError(t, h.HandleEvent(ctx, nil, encode(t, "Unknown", "x", "Whatever", map[string]string{})))

	assert.Empty(t, d.calls)
}

func TestHandleEvent_Errors(t *testing.T) {
	d := &mockDispatcher{err: errors.New("inbox unavailable")}
	h := NewHandler(d)
	ctx := context.Background()

	assert.Error(t, h.HandleEvent(ctx, nil, []byte("not json")))

	err := h.HandleEvent(ctx, nil, encode(t, order.AggregateType, "o-1", order.EventOrderAccepted,
		order.OrderAccepted{Parties: order.Parties{ProducerID: "p-1", BuyerID: "b-1", CourierID: "c-1"}, OrderID: "o-1"}))
	assert.EqualError(t, err, "inbox unavailable")
}

func TestHandleEvent_RedeliveryIsIdempotent(t *testing.T) {
	memory := inbox.NewMemoryStore(inbox.DefaultCap)
	hub, err := dispatch.NewHub(context.Background(), memory)
	require.NoError(t, err)
	h := NewHandler(hub)
	ctx := context.Background()
	value := encode(t, order.AggregateType, "o-1", order.EventOrderAccepted,
		order.OrderAccepted{Parties: order.Parties{ProducerID: "p-1", BuyerID: "b-1", CourierID: "c-1"}, OrderID: "o-1"})

	require.NoError(t, h.HandleEvent(ctx, nil, value))
	require.NoError(t, h.HandleEvent(ctx, nil, value))

	for _, r := range []string{"p-1", "b-1", "c-1"} {
		got, err := memory.List(ctx, r, 0, 0)
		require.NoError(t, err)
		assert.Len(t, got, 1, r)
	}
}
