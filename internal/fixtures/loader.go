package fixtures

import (
	"context"
	"fmt"
	"log"

	"github.com/example/marketplace-ledger/internal/command"
	"github.com/example/marketplace-ledger/internal/domain/order"
)

// Summary counts what Load created
type Summary struct {
	Wallets  int
	Orders   map[order.Status]int
	OrderIDs []string
}

// Loader replays a scenario through the command layer, so the demo data goes
// through the same checks and events as real traffic.
type Loader struct {
	cmd      *command.Handler
	currency string
}

func NewLoader(cmd *command.Handler, currency string) *Loader {
	return &Loader{cmd: cmd, currency: currency}
}

func (l *Loader) Load(ctx context.Context, s Scenario) (Summary, error) {
	summary := Summary{Orders: make(map[order.Status]int)}

	for _, actor := range s.Actors() {
		if err := l.openWallet(ctx, actor, s.TopUps[actor.ID]); err != nil {
			return summary, fmt.Errorf("wallet %s: %w", actor.ID, err)
		}
		summary.Wallets++
	}

	for i, planned := range s.Orders {
		o, err := l.driveOrder(ctx, planned)
		if err != nil {
			return summary, fmt.Errorf("order %d for %s: %w", i+1, planned.BuyerID, err)
		}
		summary.Orders[o.Status]++
		summary.OrderIDs = append(summary.OrderIDs, o.ID)
	}

	log.Printf("[Fixtures] Loaded %d wallets and %d orders", summary.Wallets, len(summary.OrderIDs))
	return summary, nil
}

func (l *Loader) openWallet(ctx context.Context, actor order.Actor, topUp int64) error {
	if _, err := l.cmd.OpenWallet(ctx, actor, command.OpenWallet{Currency: l.currency}); err != nil {
		return err
	}
	method, err := l.cmd.AddPaymentMethod(ctx, actor, command.AddPaymentMethod{
		Type:       "bank",
		Identifier: "DEMO-" + actor.ID + "-4242",
	})
	if err != nil {
		return err
	}
	if topUp <= 0 {
		return nil
	}
	_, err = l.cmd.TopUp(ctx, actor, command.TopUp{
		Amount:        topUp,
		MethodID:      method.ID,
		TransactionID: "seed-topup-" + actor.ID,
	})
	return err
}

func (l *Loader) driveOrder(ctx context.Context, planned PlannedOrder) (*order.Order, error) {
	buyer := order.Actor{ID: planned.BuyerID, Role: order.RoleBuyer}
	o, err := l.cmd.PlaceOrder(ctx, buyer, planned.Command)
	if err != nil {
		return nil, err
	}

	if planned.Stage == order.StatusCancelled {
		return l.cmd.CancelOrder(ctx, buyer, command.CancelOrder{OrderID: o.ID, Reason: "changed plans"})
	}

	courier := order.Actor{ID: planned.CourierID, Role: order.RoleCourier}
	steps := []struct {
		reached order.Status
		run     func(context.Context, order.Actor, string) (*order.Order, error)
	}{
		{order.StatusAccepted, l.cmd.AcceptOrder},
		{order.StatusPickedUp, l.cmd.PickUpOrder},
		{order.StatusInTransit, l.cmd.StartTransit},
		{order.StatusDelivered, l.cmd.DeliverOrder},
	}
	for _, step := range steps {
		if o.Status == planned.Stage {
			break
		}
		if o, err = step.run(ctx, courier, o.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", step.reached, err)
		}
	}
	return o, nil
}
