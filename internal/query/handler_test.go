package query

import (
	"testing"
	"time"

	"github.com/example/marketplace-ledger/internal/infrastructure/store/mocks"
	"github.com/example/marketplace-ledger/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueryHandler() (*Handler, *mocks.MockReadStore) {
	readStore := mocks.NewMockReadStore()
	handler := NewHandler(readStore)
	return handler, readStore
}

var base = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func seedOrders(readStore *mocks.MockReadStore) {
	orders := []*readmodel.OrderReadModel{
		{ID: "o-1", ProducerID: "p-1", BuyerID: "b-1", Status: "pending", CreatedAt: base},
		{ID: "o-2", ProducerID: "p-1", BuyerID: "b-2", CourierID: "c-1", Status: "accepted", CreatedAt: base.Add(time.Minute)},
		{ID: "o-3", ProducerID: "p-2", BuyerID: "b-1", CourierID: "c-1", Status: "delivered", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "o-4", ProducerID: "p-2", BuyerID: "b-2", Status: "cancelled", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, o := range orders {
		readStore.SetData(readmodel.CollectionOrders, o.ID, o)
	}
}

func ids(orders []*readmodel.OrderReadModel) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

// ============================================
// Order Query Tests
// ============================================

func TestHandler_GetOrder_Found(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	o, found := handler.GetOrder("o-2")

	require.True(t, found)
	assert.Equal(t, "c-1", o.CourierID)
}

func TestHandler_GetOrder_NotFound(t *testing.T) {
	handler, _ := newTestQueryHandler()

	o, found := handler.GetOrder("non-existent")

	assert.False(t, found)
	assert.Nil(t, o)
}

func TestHandler_ListOrdersByUser(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	tests := []struct {
		userID string
		want   []string
	}{
		{"b-1", []string{"o-3", "o-1"}},
		{"p-1", []string{"o-2", "o-1"}},
		{"c-1", []string{"o-3", "o-2"}},
		{"stranger", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(handler.ListOrdersByUser(tt.userID)))
		})
	}
}

func TestHandler_ListAvailableOrders(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	assert.Equal(t, []string{"o-1"}, ids(handler.ListAvailableOrders()))
}

func TestHandler_ListAllOrders(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	assert.Equal(t, []string{"o-4", "o-3", "o-2", "o-1"}, ids(handler.ListAllOrders()))
}

// ============================================
// Transaction Query Tests
// ============================================

func TestHandler_Transactions(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	txs := []*readmodel.TransactionReadModel{
		{ID: "tx-2", AccountID: "b-1", Type: "payment", Timestamp: base.Add(time.Minute)},
		{ID: "tx-1", AccountID: "b-1", Type: "topup", Timestamp: base},
		{ID: "tx-1", AccountID: "p-1", Type: "transfer", Timestamp: base},
	}
	for _, tx := range txs {
		readStore.SetData(readmodel.CollectionTransactions, readmodel.TransactionKey(tx.AccountID, tx.ID), tx)
	}

	list := handler.ListTransactions("b-1")
	require.Len(t, list, 2)
	assert.Equal(t, "tx-1", list[0].ID)
	assert.Equal(t, "tx-2", list[1].ID)

	tx, found := handler.GetTransaction("p-1", "tx-1")
	require.True(t, found)
	assert.Equal(t, "transfer", tx.Type)

	_, found = handler.GetTransaction("p-1", "tx-2")
	assert.False(t, found)
}
