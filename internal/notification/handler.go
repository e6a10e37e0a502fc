package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/inbox"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

// Dispatcher fans a notification out to its recipients
type Dispatcher interface {
	Publish(ctx context.Context, e inbox.NotificationEvent, recipients ...string) ([]inbox.NotificationEvent, error)
}

type template struct {
	kind     inbox.EventType
	priority inbox.Priority
	title    string
}

var orderTemplates = map[string]template{
	order.EventOrderPlaced:     {inbox.TypeOrder, inbox.PriorityMedium, "New order placed"},
	order.EventOrderAccepted:   {inbox.TypeOrder, inbox.PriorityMedium, "Order accepted by courier"},
	order.EventOrderPickedUp:   {inbox.TypeOrder, inbox.PriorityLow, "Order picked up"},
	order.EventOrderInTransit:  {inbox.TypeOrder, inbox.PriorityLow, "Order on the way"},
	order.EventOrderDelivered:  {inbox.TypeOrder, inbox.PriorityHigh, "Order delivered"},
	order.EventOrderCancelled:  {inbox.TypeOrder, inbox.PriorityUrgent, "Order cancelled"},
	order.EventOrderETAUpdated: {inbox.TypeOrder, inbox.PriorityLow, "Delivery time updated"},
}

// Account bookkeeping events (methods, limits, PIN) do not notify.
var walletTemplates = map[string]template{
	wallet.EventTopUpCompleted:      {inbox.TypePayment, inbox.PriorityMedium, "Wallet topped up"},
	wallet.EventWithdrawalRequested: {inbox.TypePayment, inbox.PriorityUrgent, "Withdrawal requested"},
	wallet.EventPayoutCompleted:     {inbox.TypePayment, inbox.PriorityHigh, "Payout completed"},
	wallet.EventPayoutFailed:        {inbox.TypePayment, inbox.PriorityUrgent, "Payout failed"},
	wallet.EventPayoutReversed:      {inbox.TypePayment, inbox.PriorityMedium, "Payout amount returned"},
	wallet.EventPaymentCompleted:    {inbox.TypePayment, inbox.PriorityMedium, "Payment completed"},
	wallet.EventCashbackCredited:    {inbox.TypePayment, inbox.PriorityMedium, "Cashback earned"},
	wallet.EventFundsFrozen:         {inbox.TypePayment, inbox.PriorityMedium, "Funds held for order"},
	wallet.EventFundsReleased:       {inbox.TypePayment, inbox.PriorityMedium, "Held funds released"},
	wallet.EventEscrowSettled:       {inbox.TypePayment, inbox.PriorityMedium, "Order paid"},
	wallet.EventEscrowRefunded:      {inbox.TypePayment, inbox.PriorityMedium, "Order refunded"},
	wallet.EventProceedsCredited:    {inbox.TypePayment, inbox.PriorityMedium, "Sale proceeds received"},
	wallet.EventRefundIssued:        {inbox.TypePayment, inbox.PriorityMedium, "Refund sent"},
	wallet.EventRefundReceived:      {inbox.TypePayment, inbox.PriorityMedium, "Refund received"},
	wallet.EventRewardGranted:       {inbox.TypeSystem, inbox.PriorityLow, "New reward available"},
	wallet.EventRewardRedeemed:      {inbox.TypeSystem, inbox.PriorityMedium, "Reward redeemed"},
}

// Handler turns stored domain events into notifications
type Handler struct {
	dispatcher Dispatcher
}

func NewHandler(dispatcher Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// HandleEvent processes an event from the event bus
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	n, recipients, err := Translate(event)
	if err != nil {
		log.Printf("[Notifier] Failed to translate %s event %s: %v", event.EventType, event.ID, err)
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	delivered, err := h.dispatcher.Publish(ctx, n, recipients...)
	if err != nil {
		return err
	}
	log.Printf("[Notifier] %s for %s delivered to %d recipient(s)", event.EventType, event.AggregateID, len(delivered))
	return nil
}

// orderRef reads the fields every order event shares
type orderRef struct {
	order.Parties
	OrderID string `json:"order_id"`
}

// Translate maps a stored event to a notification and its recipients. Events
// nobody is notified about yield no recipients.
func Translate(event store.Event) (inbox.NotificationEvent, []string, error) {
	var recipients []string
	var t template
	var ok bool

	switch event.AggregateType {
	case order.AggregateType:
		if t, ok = orderTemplates[event.EventType]; !ok {
			return inbox.NotificationEvent{}, nil, nil
		}
		var ref orderRef
		if err := json.Unmarshal(event.Data, &ref); err != nil {
			return inbox.NotificationEvent{}, nil, err
		}
		recipients = []string{ref.ProducerID, ref.BuyerID}
		if ref.CourierID != "" {
			recipients = append(recipients, ref.CourierID)
		}
	case wallet.AggregateType:
		if t, ok = walletTemplates[event.EventType]; !ok {
			return inbox.NotificationEvent{}, nil, nil
		}
		recipients = []string{event.AggregateID}
	default:
		return inbox.NotificationEvent{}, nil, nil
	}

	payload, err := json.Marshal(map[string]any{
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
		"data":         event.Data,
	})
	if err != nil {
		return inbox.NotificationEvent{}, nil, err
	}
	return inbox.NotificationEvent{
		Type:          t.kind,
		Priority:      t.priority,
		Title:         t.title,
		Payload:       payload,
		Timestamp:     event.Timestamp,
		SourceEventID: event.ID,
	}, recipients, nil
}
