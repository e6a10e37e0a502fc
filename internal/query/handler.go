package query

import (
	"slices"

	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/example/marketplace-ledger/internal/readmodel"
)

type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

// Orders
func (h *Handler) GetOrder(id string) (*readmodel.OrderReadModel, bool) {
	data, ok := h.readStore.Get(readmodel.CollectionOrders, id)
	if !ok {
		return nil, false
	}
	return data.(*readmodel.OrderReadModel), true
}

func (h *Handler) listOrders(keep func(*readmodel.OrderReadModel) bool) []*readmodel.OrderReadModel {
	items := h.readStore.GetAll(readmodel.CollectionOrders)
	orders := make([]*readmodel.OrderReadModel, 0, len(items))
	for _, item := range items {
		o := item.(*readmodel.OrderReadModel)
		if keep(o) {
			orders = append(orders, o)
		}
	}
	// newest first
	slices.SortFunc(orders, func(a, b *readmodel.OrderReadModel) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return orders
}

// ListOrdersByUser returns the orders in which userID is producer, buyer or courier
func (h *Handler) ListOrdersByUser(userID string) []*readmodel.OrderReadModel {
	return h.listOrders(func(o *readmodel.OrderReadModel) bool { return o.Involves(userID) })
}

// ListAvailableOrders returns pending orders no courier has claimed yet
func (h *Handler) ListAvailableOrders() []*readmodel.OrderReadModel {
	return h.listOrders(func(o *readmodel.OrderReadModel) bool { return o.Status == "pending" && o.CourierID == "" })
}

// ListAllOrders returns all orders (for admin use)
func (h *Handler) ListAllOrders() []*readmodel.OrderReadModel {
	return h.listOrders(func(*readmodel.OrderReadModel) bool { return true })
}

// Transactions
func (h *Handler) GetTransaction(accountID, transactionID string) (*readmodel.TransactionReadModel, bool) {
	data, ok := h.readStore.Get(readmodel.CollectionTransactions, readmodel.TransactionKey(accountID, transactionID))
	if !ok {
		return nil, false
	}
	return data.(*readmodel.TransactionReadModel), true
}

// ListTransactions returns an account's transactions oldest first
func (h *Handler) ListTransactions(accountID string) []*readmodel.TransactionReadModel {
	items := h.readStore.GetAll(readmodel.CollectionTransactions)
	txs := make([]*readmodel.TransactionReadModel, 0)
	for _, item := range items {
		t := item.(*readmodel.TransactionReadModel)
		if t.AccountID == accountID {
			txs = append(txs, t)
		}
	}
	slices.SortStableFunc(txs, func(a, b *readmodel.TransactionReadModel) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return txs
}
