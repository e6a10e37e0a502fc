package order

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

type Role string

const (
	RoleProducer Role = "producer"
	RoleBuyer    Role = "buyer"
	RoleCourier  Role = "courier"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller of an order operation
type Actor struct {
	ID   string
	Role Role
}

var (
	ErrOrderNotFound = fmt.Errorf("order %w", apperr.ErrNotFound)
	ErrEmptyOrder    = fmt.Errorf("%w: order must have at least one item", apperr.ErrInvalidInput)
	ErrInvalidItem   = fmt.Errorf("%w: item quantity must be positive and unit price non-negative", apperr.ErrInvalidInput)
	ErrNoProducer    = fmt.Errorf("%w: producer is required", apperr.ErrInvalidInput)
	ErrInvalidETA    = fmt.Errorf("%w: estimated delivery time is required", apperr.ErrInvalidInput)
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit},
	StatusInTransit: {StatusDelivered},
	StatusDelivered: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	return slices.Contains(validTransitions[o.Status], target)
}

func (o *Order) transitionError(target Status) error {
	return fmt.Errorf("%w: cannot transition from %s to %s", apperr.ErrInvalidTransition, o.Status, target)
}

// IsTerminal reports whether no further transition is possible
func (o *Order) IsTerminal() bool {
	return len(validTransitions[o.Status]) == 0
}

// inFlight reports whether a courier currently holds the order
func (o *Order) inFlight() bool {
	switch o.Status {
	case StatusAccepted, StatusPickedUp, StatusInTransit:
		return true
	}
	return false
}

type Order struct {
	ID                  string    `json:"id"`
	ProducerID          string    `json:"producer_id"`
	BuyerID             string    `json:"buyer_id"`
	CourierID           string    `json:"courier_id,omitempty"`
	Items               []Item    `json:"items"`
	Category            string    `json:"category,omitempty"`
	Status              Status    `json:"status"`
	TotalAmount         int64     `json:"total_amount"`
	Distance            float64   `json:"distance"`
	CancelReason        string    `json:"cancel_reason,omitempty"`
	EstimatedDeliveryAt time.Time `json:"estimated_delivery_at"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Version             int       `json:"version"` // Current event version
}

// Aggregate interface implementation
func (o *Order) GetID() string    { return o.ID }
func (o *Order) GetVersion() int  { return o.Version }
func (o *Order) SetVersion(v int) { o.Version = v }

func (o *Order) parties() Parties {
	return Parties{ProducerID: o.ProducerID, BuyerID: o.BuyerID, CourierID: o.CourierID}
}

// Total sums quantity times unit price over items. Items that are not
// positive quantities at non-negative prices, or a total that does not fit in
// an int64, are rejected with ErrInvalidItem.
func Total(items []Item) (int64, error) {
	var total int64
	for _, item := range items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return 0, ErrInvalidItem
		}
		qty := int64(item.Quantity)
		if item.UnitPrice > 0 && qty > (math.MaxInt64-total)/item.UnitPrice {
			return 0, fmt.Errorf("%w: total overflows at item %q", ErrInvalidItem, item.Name)
		}
		total += qty * item.UnitPrice
	}
	return total, nil
}

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.ProducerID = data.ProducerID
		o.BuyerID = data.BuyerID
		o.Items = data.Items
		o.Category = data.Category
		o.TotalAmount = data.TotalAmount
		o.Distance = data.Distance
		o.EstimatedDeliveryAt = data.EstimatedDeliveryAt
		o.Status = StatusPending
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderAccepted:
		var data OrderAccepted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.CourierID = data.CourierID
		o.Status = StatusAccepted
		o.UpdatedAt = data.AcceptedAt
	case EventOrderPickedUp:
		var data OrderPickedUp
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusPickedUp
		o.UpdatedAt = data.PickedUpAt
	case EventOrderInTransit:
		var data OrderInTransit
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusInTransit
		o.UpdatedAt = data.StartedAt
	case EventOrderDelivered:
		var data OrderDelivered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusDelivered
		o.UpdatedAt = data.DeliveredAt
	case EventOrderCancelled:
		var data OrderCancelled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.CancelReason = data.Reason
		o.UpdatedAt = data.CancelledAt
	case EventOrderETAUpdated:
		var data OrderETAUpdated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.EstimatedDeliveryAt = data.EstimatedDeliveryAt
		o.UpdatedAt = data.UpdatedAt
	}
	o.Version = event.Version
	return nil
}
