package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/example/marketplace-ledger/internal/domain/aggregate"
	"github.com/example/marketplace-ledger/internal/infrastructure/locker"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/google/uuid"
)

type PlaceRequest struct {
	ProducerID          string
	Items               []Item
	Category            string
	Distance            float64
	EstimatedDeliveryAt time.Time
}

type Service struct {
	eventStore store.EventStoreInterface
	locks      *locker.Keyed
	now        func() time.Time
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{
		eventStore: es,
		locks:      locker.NewKeyed(),
		now:        time.Now,
	}
}

// WithClock replaces the time source used for event timestamps
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// loadOrder loads an order by replaying events, using snapshot if available
func (s *Service) loadOrder(ctx context.Context, orderID string) (*Order, error) {
	order, found, err := aggregate.LoadAggregate(ctx, s.eventStore, orderID, func() *Order {
		return &Order{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// record appends one event for the order, folds the stored copy into o and
// snapshots when the threshold is reached.
func (s *Service) record(ctx context.Context, o *Order, eventType string, data any) error {
	stored, err := s.eventStore.Append(ctx, o.ID, AggregateType, eventType, data)
	if err != nil {
		return err
	}
	if err := o.ApplyEvent(*stored); err != nil {
		return err
	}

	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, o, AggregateType, 1); err != nil {
		log.Printf("[Order] Failed to create snapshot for order %s: %v", o.ID, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *Service) Place(ctx context.Context, actor Actor, req PlaceRequest) (*Order, error) {
	if actor.Role != RoleBuyer {
		return nil, fmt.Errorf("%w: only buyers place orders", apperr.ErrUnauthorizedActor)
	}
	if req.ProducerID == "" {
		return nil, ErrNoProducer
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	total, err := Total(req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &Order{ID: uuid.New().String()}
	event := OrderPlaced{
		Parties:             Parties{ProducerID: req.ProducerID, BuyerID: actor.ID},
		OrderID:             order.ID,
		Items:               req.Items,
		Category:            req.Category,
		TotalAmount:         total,
		Distance:            req.Distance,
		EstimatedDeliveryAt: req.EstimatedDeliveryAt,
		PlacedAt:            now,
	}

	if err := s.record(ctx, order, EventOrderPlaced, event); err != nil {
		return nil, err
	}
	return order, nil
}

// transition runs the shared load, check and append sequence under the
// order's lock. Checks run in a fixed order: existence, graph legality,
// then the actor.
func (s *Service) transition(
	ctx context.Context,
	orderID string,
	target Status,
	authorized func(*Order) bool,
	event func(*Order, time.Time) (string, any),
) (*Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanTransitionTo(target) {
		return nil, order.transitionError(target)
	}
	if !authorized(order) {
		return nil, fmt.Errorf("%w: cannot move order %s to %s", apperr.ErrUnauthorizedActor, orderID, target)
	}

	eventType, data := event(order, s.now())
	if err := s.record(ctx, order, eventType, data); err != nil {
		return nil, err
	}
	return order, nil
}

func (o *Order) claimedBy(actor Actor) bool {
	return actor.Role == RoleCourier && o.CourierID != "" && o.CourierID == actor.ID
}

// Accept lets a courier claim a pending order
func (s *Service) Accept(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusAccepted,
		func(*Order) bool { return actor.Role == RoleCourier && actor.ID != "" },
		func(o *Order, now time.Time) (string, any) {
			p := o.parties()
			p.CourierID = actor.ID
			return EventOrderAccepted, OrderAccepted{Parties: p, OrderID: o.ID, AcceptedAt: now}
		})
}

func (s *Service) PickUp(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusPickedUp, func(o *Order) bool { return o.claimedBy(actor) },
		func(o *Order, now time.Time) (string, any) {
			return EventOrderPickedUp, OrderPickedUp{Parties: o.parties(), OrderID: o.ID, PickedUpAt: now}
		})
}

func (s *Service) StartTransit(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusInTransit, func(o *Order) bool { return o.claimedBy(actor) },
		func(o *Order, now time.Time) (string, any) {
			return EventOrderInTransit, OrderInTransit{Parties: o.parties(), OrderID: o.ID, StartedAt: now}
		})
}

func (s *Service) Deliver(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusDelivered, func(o *Order) bool { return o.claimedBy(actor) },
		func(o *Order, now time.Time) (string, any) {
			return EventOrderDelivered, OrderDelivered{
				Parties:     o.parties(),
				OrderID:     o.ID,
				TotalAmount: o.TotalAmount,
				Category:    o.Category,
				DeliveredAt: now,
			}
		})
}

// Cancel is open to the order's buyer or producer until pickup
func (s *Service) Cancel(ctx context.Context, orderID string, actor Actor, reason string) (*Order, error) {
	return s.transition(ctx, orderID, StatusCancelled,
		func(o *Order) bool { return actor.ID != "" && (actor.ID == o.BuyerID || actor.ID == o.ProducerID) },
		func(o *Order, now time.Time) (string, any) {
			return EventOrderCancelled, OrderCancelled{
				Parties:     o.parties(),
				OrderID:     o.ID,
				Reason:      reason,
				CancelledBy: actor.ID,
				FromStatus:  o.Status,
				TotalAmount: o.TotalAmount,
				CancelledAt: now,
			}
		})
}

// UpdateETA revises the delivery estimate without changing status
func (s *Service) UpdateETA(ctx context.Context, orderID string, actor Actor, eta time.Time) (*Order, error) {
	if eta.IsZero() {
		return nil, ErrInvalidETA
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.inFlight() {
		return nil, fmt.Errorf("%w: cannot update ETA of %s order", apperr.ErrInvalidTransition, order.Status)
	}
	if !order.claimedBy(actor) {
		return nil, fmt.Errorf("%w: only the assigned courier updates the ETA", apperr.ErrUnauthorizedActor)
	}

	event := OrderETAUpdated{
		Parties:             order.parties(),
		OrderID:             order.ID,
		EstimatedDeliveryAt: eta,
		UpdatedAt:           s.now(),
	}
	if err := s.record(ctx, order, EventOrderETAUpdated, event); err != nil {
		return nil, err
	}
	return order, nil
}
