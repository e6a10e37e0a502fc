package projection

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/example/marketplace-ledger/internal/readmodel"
)

// ledgerEvents carry a wallet.LedgerEntry
var ledgerEvents = map[string]bool{
	wallet.EventTopUpCompleted:      true,
	wallet.EventWithdrawalRequested: true,
	wallet.EventPayoutReversed:      true,
	wallet.EventPaymentCompleted:    true,
	wallet.EventCashbackCredited:    true,
	wallet.EventFundsFrozen:         true,
	wallet.EventFundsReleased:       true,
	wallet.EventEscrowSettled:       true,
	wallet.EventEscrowRefunded:      true,
	wallet.EventProceedsCredited:    true,
	wallet.EventRefundIssued:        true,
	wallet.EventRefundReceived:      true,
	wallet.EventRewardRedeemed:      true,
}

type Projector struct {
	readStore store.ReadStoreInterface
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{readStore: readStore}
}

func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	log.Printf("[Projector] Received event: %s (aggregate: %s)", event.EventType, event.AggregateType)

	switch event.AggregateType {
	case order.AggregateType:
		return p.handleOrderEvent(event)
	case wallet.AggregateType:
		return p.handleAccountEvent(event)
	}

	return nil
}

func (p *Projector) updateOrder(orderID string, fn func(o *readmodel.OrderReadModel)) {
	found := p.readStore.Update(readmodel.CollectionOrders, orderID, func(current any) any {
		o := current.(*readmodel.OrderReadModel)
		fn(o)
		return o
	})
	if !found {
		log.Printf("[Projector] Order %s not in read store, event skipped", orderID)
	}
}

func setStatus(status order.Status, at time.Time) func(o *readmodel.OrderReadModel) {
	return func(o *readmodel.OrderReadModel) {
		o.Status = string(status)
		o.UpdatedAt = at
	}
}

func (p *Projector) handleOrderEvent(event store.Event) error {
	switch event.EventType {
	case order.EventOrderPlaced:
		var e order.OrderPlaced
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		items := make([]readmodel.OrderItemReadModel, len(e.Items))
		for i, item := range e.Items {
			items[i] = readmodel.OrderItemReadModel{
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			}
		}
		p.readStore.Set(readmodel.CollectionOrders, e.OrderID, &readmodel.OrderReadModel{
			ID:                  e.OrderID,
			ProducerID:          e.ProducerID,
			BuyerID:             e.BuyerID,
			Items:               items,
			Category:            e.Category,
			TotalAmount:         e.TotalAmount,
			Distance:            e.Distance,
			Status:              string(order.StatusPending),
			EstimatedDeliveryAt: e.EstimatedDeliveryAt,
			CreatedAt:           e.PlacedAt,
			UpdatedAt:           e.PlacedAt,
		})

	case order.EventOrderAccepted:
		var e order.OrderAccepted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderReadModel) {
			o.CourierID = e.CourierID
			setStatus(order.StatusAccepted, e.AcceptedAt)(o)
		})

	case order.EventOrderPickedUp:
		var e order.OrderPickedUp
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, setStatus(order.StatusPickedUp, e.PickedUpAt))

	case order.EventOrderInTransit:
		var e order.OrderInTransit
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, setStatus(order.StatusInTransit, e.StartedAt))

	case order.EventOrderDelivered:
		var e order.OrderDelivered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, setStatus(order.StatusDelivered, e.DeliveredAt))

	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderReadModel) {
			o.CancelReason = e.Reason
			setStatus(order.StatusCancelled, e.CancelledAt)(o)
		})

	case order.EventOrderETAUpdated:
		var e order.OrderETAUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderReadModel) {
			o.EstimatedDeliveryAt = e.EstimatedDeliveryAt
			o.UpdatedAt = e.UpdatedAt
		})
	}

	return nil
}

func (p *Projector) handleAccountEvent(event store.Event) error {
	switch {
	case ledgerEvents[event.EventType]:
		var e wallet.LedgerEntry
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		tx := e.Transaction
		p.readStore.Set(readmodel.CollectionTransactions, readmodel.TransactionKey(tx.AccountID, tx.ID), &readmodel.TransactionReadModel{
			ID:                  tx.ID,
			AccountID:           tx.AccountID,
			Type:                string(tx.Type),
			Amount:              tx.Amount,
			Currency:            tx.Currency,
			Status:              string(tx.Status),
			Fees:                tx.Fees,
			PaymentMethodRef:    tx.PaymentMethodRef,
			OrderID:             tx.OrderID,
			LinkedTransactionID: tx.LinkedTransactionID,
			Category:            tx.Category,
			Timestamp:           tx.Timestamp,
			FinalizedAt:         tx.FinalizedAt,
		})

	case event.EventType == wallet.EventPayoutCompleted || event.EventType == wallet.EventPayoutFailed:
		var e wallet.PayoutFinalized
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		key := readmodel.TransactionKey(e.AccountID, e.TransactionID)
		found := p.readStore.Update(readmodel.CollectionTransactions, key, func(current any) any {
			t := current.(*readmodel.TransactionReadModel)
			finalizedAt := e.FinalizedAt
			t.Status = string(e.Status)
			t.FinalizedAt = &finalizedAt
			if e.ReversalID != "" {
				t.LinkedTransactionID = e.ReversalID
			}
			return t
		})
		if !found {
			log.Printf("[Projector] Payout %s not in read store, event skipped", key)
		}
	}

	return nil
}
