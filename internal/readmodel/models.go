package readmodel

import "time"

// Collections served by the read store
const (
	CollectionOrders       = "orders"
	CollectionTransactions = "transactions"
)

// OrderItemReadModel represents a line item in an order
type OrderItemReadModel struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID                  string               `json:"id"`
	ProducerID          string               `json:"producer_id"`
	BuyerID             string               `json:"buyer_id"`
	CourierID           string               `json:"courier_id,omitempty"`
	Items               []OrderItemReadModel `json:"items"`
	Category            string               `json:"category,omitempty"`
	TotalAmount         int64                `json:"total_amount"`
	Distance            float64              `json:"distance"`
	Status              string               `json:"status"`
	CancelReason        string               `json:"cancel_reason,omitempty"`
	EstimatedDeliveryAt time.Time            `json:"estimated_delivery_at"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// Involves reports whether userID is one of the order's parties
func (o *OrderReadModel) Involves(userID string) bool {
	return o.ProducerID == userID || o.BuyerID == userID || o.CourierID == userID
}

// TransactionReadModel is the read model for ledger transactions
type TransactionReadModel struct {
	ID                  string     `json:"id"`
	AccountID           string     `json:"account_id"`
	Type                string     `json:"type"`
	Amount              int64      `json:"amount"`
	Currency            string     `json:"currency"`
	Status              string     `json:"status"`
	Fees                int64      `json:"fees"`
	PaymentMethodRef    string     `json:"payment_method_ref,omitempty"`
	OrderID             string     `json:"order_id,omitempty"`
	LinkedTransactionID string     `json:"linked_transaction_id,omitempty"`
	Category            string     `json:"category,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
	FinalizedAt         *time.Time `json:"finalized_at,omitempty"`
}

// TransactionKey is the read store key of a transaction; ids are unique per account only
func TransactionKey(accountID, transactionID string) string {
	return accountID + "/" + transactionID
}
