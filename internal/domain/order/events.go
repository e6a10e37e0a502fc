package order

import "time"

const (
	EventOrderPlaced     = "OrderPlaced"
	EventOrderAccepted   = "OrderAccepted"
	EventOrderPickedUp   = "OrderPickedUp"
	EventOrderInTransit  = "OrderInTransit"
	EventOrderDelivered  = "OrderDelivered"
	EventOrderCancelled  = "OrderCancelled"
	EventOrderETAUpdated = "OrderETAUpdated"
)

type Item struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Parties is carried on every order event so consumers can address all
// three actors without loading the order.
type Parties struct {
	ProducerID string `json:"producer_id"`
	BuyerID    string `json:"buyer_id"`
	CourierID  string `json:"courier_id,omitempty"`
}

type OrderPlaced struct {
	Parties
	OrderID             string    `json:"order_id"`
	Items               []Item    `json:"items"`
	Category            string    `json:"category,omitempty"`
	TotalAmount         int64     `json:"total_amount"`
	Distance            float64   `json:"distance"`
	EstimatedDeliveryAt time.Time `json:"estimated_delivery_at"`
	PlacedAt            time.Time `json:"placed_at"`
}

type OrderAccepted struct {
	Parties
	OrderID    string    `json:"order_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type OrderPickedUp struct {
	Parties
	OrderID    string    `json:"order_id"`
	PickedUpAt time.Time `json:"picked_up_at"`
}

type OrderInTransit struct {
	Parties
	OrderID   string    `json:"order_id"`
	StartedAt time.Time `json:"started_at"`
}

type OrderDelivered struct {
	Parties
	OrderID     string    `json:"order_id"`
	TotalAmount int64     `json:"total_amount"`
	Category    string    `json:"category,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type OrderCancelled struct {
	Parties
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledBy string    `json:"cancelled_by"`
	FromStatus  Status    `json:"from_status"`
	TotalAmount int64     `json:"total_amount"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type OrderETAUpdated struct {
	Parties
	OrderID             string    `json:"order_id"`
	EstimatedDeliveryAt time.Time `json:"estimated_delivery_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
