package command

import "time"

// Order Commands
type OrderItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type PlaceOrder struct {
	ProducerID          string      `json:"producer_id"`
	Items               []OrderItem `json:"items"`
	Category            string      `json:"category"`
	Distance            float64     `json:"distance"`
	EstimatedDeliveryAt time.Time   `json:"estimated_delivery_at"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type UpdateETA struct {
	OrderID             string    `json:"order_id"`
	EstimatedDeliveryAt time.Time `json:"estimated_delivery_at"`
}

// RefundOrder pays a buyer back after delivery, out of the producer's balance
type RefundOrder struct {
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id"`
}

// Wallet Commands
type OpenWallet struct {
	Currency      string `json:"currency"`
	SpendingLimit int64  `json:"spending_limit"`
}

type AddPaymentMethod struct {
	Type           string `json:"type"`
	Identifier     string `json:"identifier"`
	PerTransaction int64  `json:"per_transaction_limit"`
	Daily          int64  `json:"daily_limit"`
	Monthly        int64  `json:"monthly_limit"`
}

type TopUp struct {
	Amount        int64  `json:"amount"`
	MethodID      string `json:"method_id"`
	TransactionID string `json:"transaction_id"`
}

type Withdraw struct {
	Amount        int64  `json:"amount"`
	MethodID      string `json:"method_id"`
	PIN           string `json:"pin"`
	TransactionID string `json:"transaction_id"`
}

type Pay struct {
	Amount        int64  `json:"amount"`
	OrderID       string `json:"order_id"`
	Category      string `json:"category"`
	TransactionID string `json:"transaction_id"`
}

type SetPIN struct {
	PIN        string `json:"pin"`
	CurrentPIN string `json:"current_pin"`
}

type RedeemReward struct {
	RewardID      string `json:"reward_id"`
	TransactionID string `json:"transaction_id"`
}

// GrantReward is issued by an admin
type GrantReward struct {
	AccountID     string    `json:"account_id"`
	Title         string    `json:"title"`
	PointCost     int64     `json:"point_cost"`
	MonetaryValue int64     `json:"monetary_value"`
	ExpiresAt     time.Time `json:"expires_at"`
}
