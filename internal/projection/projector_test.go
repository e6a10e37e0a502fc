package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/example/marketplace-ledger/internal/infrastructure/store/mocks"
	"github.com/example/marketplace-ledger/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProjector() (*Projector, *mocks.MockReadStore) {
	readStore := mocks.NewMockReadStore()
	projector := NewProjector(readStore)
	return projector, readStore
}

func makeEvent(aggregateType, eventType string, data any) []byte {
	jsonData, _ := json.Marshal(data)
	event := store.Event{
		ID:            "event-123",
		AggregateID:   "agg-123",
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
	}
	result, _ := json.Marshal(event)
	return result
}

var parties = order.Parties{ProducerID: "producer-1", BuyerID: "buyer-1", CourierID: "courier-1"}

func seedOrder(readStore *mocks.MockReadStore, status order.Status) {
	readStore.SetData(readmodel.CollectionOrders, "order-123", &readmodel.OrderReadModel{
		ID:         "order-123",
		ProducerID: "producer-1",
		BuyerID:    "buyer-1",
		Status:     string(status),
	})
}

func getOrder(t *testing.T, readStore *mocks.MockReadStore) *readmodel.OrderReadModel {
	t.Helper()
	data, ok := readStore.GetData(readmodel.CollectionOrders, "order-123")
	require.True(t, ok)
	return data.(*readmodel.OrderReadModel)
}

// ============================================
// Order Event Tests
// ============================================

func TestProjector_HandleOrderPlaced(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	placedAt := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	eventData := order.OrderPlaced{
		Parties:             order.Parties{ProducerID: "producer-1", BuyerID: "buyer-1"},
		OrderID:             "order-123",
		Items:               []order.Item{{Name: "Sourdough", Quantity: 2, UnitPrice: 450}},
		Category:            "bakery",
		TotalAmount:         900,
		Distance:            3.5,
		EstimatedDeliveryAt: placedAt.Add(time.Hour),
		PlacedAt:            placedAt,
	}

	err := projector.HandleEvent(ctx, nil, makeEvent(order.AggregateType, order.EventOrderPlaced, eventData))

	require.NoError(t, err)
	o := getOrder(t, readStore)
	assert.Equal(t, "pending", o.Status)
	assert.Equal(t, "buyer-1", o.BuyerID)
	assert.Equal(t, int64(900), o.TotalAmount)
	assert.Equal(t, 3.5, o.Distance)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Sourdough", o.Items[0].Name)
	assert.Equal(t, int64(450), o.Items[0].UnitPrice)
	assert.Empty(t, o.CourierID)
}

func TestProjector_HandleOrderAccepted(t *testing.T) {
	projector, readStore := newTestProjector()
	seedOrder(readStore, order.StatusPending)
	acceptedAt := time.Now()

	err := projector.HandleEvent(context.Background(), nil, makeEvent(order.AggregateType, order.EventOrderAccepted,
		order.OrderAccepted{Parties: parties, OrderID: "order-123", AcceptedAt: acceptedAt}))

	require.NoError(t, err)
	o := getOrder(t, readStore)
	assert.Equal(t, "accepted", o.Status)
	assert.Equal(t, "courier-1", o.CourierID)
	assert.WithinDuration(t, acceptedAt, o.UpdatedAt, time.Second)
}

func TestProjector_HandleOrderProgress(t *testing.T) {
	tests := []struct {
		eventType  string
		data       any
		wantStatus string
	}{
		{order.EventOrderPickedUp, order.OrderPickedUp{Parties: parties, OrderID: "order-123"}, "picked_up"},
		{order.EventOrderInTransit, order.OrderInTransit{Parties: parties, OrderID: "order-123"}, "in_transit"},
		{order.EventOrderDelivered, order.OrderDelivered{Parties: parties, OrderID: "order-123"}, "delivered"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			projector, readStore := newTestProjector()
			seedOrder(readStore, order.StatusAccepted)

			err := projector.HandleEvent(context.Background(), nil, makeEvent(order.AggregateType, tt.eventType, tt.data))

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, getOrder(t, readStore).Status)
		})
	}
}

func TestProjector_HandleOrderCancelled(t *testing.T) {
	projector, readStore := newTestProjector()
	seedOrder(readStore, order.StatusPending)

	err := projector.HandleEvent(context.Background(), nil, makeEvent(order.AggregateType, order.EventOrderCancelled,
		order.OrderCancelled{Parties: parties, OrderID: "order-123", Reason: "changed my mind", CancelledBy: "buyer-1"}))

	require.NoError(t, err)
	o := getOrder(t, readStore)
	assert.Equal(t, "cancelled", o.Status)
	assert.Equal(t, "changed my mind", o.CancelReason)
}

func TestProjector_HandleOrderETAUpdated(t *testing.T) {
	projector, readStore := newTestProjector()
	seedOrder(readStore, order.StatusInTransit)
	eta := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

	err := projector.HandleEvent(context.Background(), nil, makeEvent(order.AggregateType, order.EventOrderETAUpdated,
		order.OrderETAUpdated{Parties: parties, OrderID: "order-123", EstimatedDeliveryAt: eta}))

	require.NoError(t, err)
	o := getOrder(t, readStore)
	assert.True(t, eta.Equal(o.EstimatedDeliveryAt))
	assert.Equal(t, "in_transit", o.Status)
}

func TestProjector_UpdateOfUnknownOrderIsSkipped(t *testing.T) {
	projector, readStore := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, makeEvent(order.AggregateType, order.EventOrderPickedUp,
		order.OrderPickedUp{Parties: parties, OrderID: "missing"}))

	require.NoError(t, err)
	require.Len(t, readStore.UpdateCalls, 1)
	assert.Empty(t, readStore.SetCalls)
}

// ============================================
// Account Event Tests
// ============================================

func TestProjector_HandleLedgerEntry(t *testing.T) {
	projector, readStore := newTestProjector()
	now := time.Now()

	entry := wallet.LedgerEntry{Transaction: wallet.Transaction{
		ID:               "wd-1",
		AccountID:        "buyer-1",
		Type:             wallet.TypePayout,
		Amount:           400,
		Currency:         "USD",
		Status:           wallet.StatusPending,
		Fees:             6,
		PaymentMethodRef: "method-1",
		Timestamp:        now,
	}}

	err := projector.HandleEvent(context.Background(), nil, makeEvent(wallet.AggregateType, wallet.EventWithdrawalRequested, entry))

	require.NoError(t, err)
	data, ok := readStore.GetData(readmodel.CollectionTransactions, "buyer-1/wd-1")
	require.True(t, ok)
	tx := data.(*readmodel.TransactionReadModel)
	assert.Equal(t, "payout", tx.Type)
	assert.Equal(t, "pending", tx.Status)
	assert.Equal(t, int64(6), tx.Fees)
	assert.Nil(t, tx.FinalizedAt)
}

func TestProjector_HandlePayoutFailed(t *testing.T) {
	projector, readStore := newTestProjector()
	readStore.SetData(readmodel.CollectionTransactions, "buyer-1/wd-1", &readmodel.TransactionReadModel{
		ID:        "wd-1",
		AccountID: "buyer-1",
		Type:      "payout",
		Status:    "pending",
	})
	finalizedAt := time.Now()

	err := projector.HandleEvent(context.Background(), nil, makeEvent(wallet.AggregateType, wallet.EventPayoutFailed, wallet.PayoutFinalized{
		AccountID:     "buyer-1",
		TransactionID: "wd-1",
		Status:        wallet.StatusFailed,
		ReversalID:    "wd-1:reversal",
		FinalizedAt:   finalizedAt,
	}))

	require.NoError(t, err)
	data, _ := readStore.GetData(readmodel.CollectionTransactions, "buyer-1/wd-1")
	tx := data.(*readmodel.TransactionReadModel)
	assert.Equal(t, "failed", tx.Status)
	assert.Equal(t, "wd-1:reversal", tx.LinkedTransactionID)
	require.NotNil(t, tx.FinalizedAt)
}

func TestProjector_IgnoresBookkeepingEvents(t *testing.T) {
	projector, readStore := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, makeEvent(wallet.AggregateType, wallet.EventPINSet, wallet.PINSet{AccountID: "buyer-1"}))

	require.NoError(t, err)
	assert.Empty(t, readStore.SetCalls)
	assert.Empty(t, readStore.UpdateCalls)
}

// ============================================
// Error Handling Tests
// ============================================

func TestProjector_HandleInvalidJSON(t *testing.T) {
	projector, _ := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, []byte("invalid json"))

	assert.Error(t, err)
}

func TestProjector_HandleInvalidEventData(t *testing.T) {
	projector, _ := newTestProjector()
	event := store.Event{
		AggregateType: order.AggregateType,
		EventType:     order.EventOrderPlaced,
		Data:          json.RawMessage(`{"items": "not a list"}`),
	}
	value, _ := json.Marshal(event)

	err := projector.HandleEvent(context.Background(), nil, value)

	assert.Error(t, err)
}

func TestProjector_HandleUnknownAggregate(t *testing.T) {
	projector, readStore := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, makeEvent("Unknown", "Something", map[string]string{}))

	assert.NoError(t, err)
	assert.Empty(t, readStore.SetCalls)
}
