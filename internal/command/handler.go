package command

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/example/marketplace-ledger/internal/auth"
	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/gateway"
	"github.com/google/uuid"
)

var (
	ErrPINRequired  = fmt.Errorf("%w: set a PIN before withdrawing", apperr.ErrConflict)
	ErrIncorrectPIN = fmt.Errorf("%w: incorrect PIN", apperr.ErrUnauthorizedActor)
	ErrAdminOnly    = fmt.Errorf("%w: admin role required", apperr.ErrUnauthorizedActor)
)

// Ledger transaction ids of an order's escrow movements are derived from the
// order id, so a retried settlement or refund replays instead of repeating.
func EscrowTxID(orderID string) string { return "escrow:" + orderID }
func SettleTxID(orderID string) string { return "settle:" + orderID }
func RefundTxID(orderID string) string { return "refund:" + orderID }

type Handler struct {
	orderSvc  *order.Service
	walletSvc *wallet.Service
	gateway   gateway.Gateway
}

func NewHandler(orderSvc *order.Service, walletSvc *wallet.Service, gw gateway.Gateway) *Handler {
	return &Handler{
		orderSvc:  orderSvc,
		walletSvc: walletSvc,
		gateway:   gw,
	}
}

func txIDOrNew(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

// ============================================
// Orders
// ============================================

// PlaceOrder creates the order and escrows its total from the buyer's wallet.
// When the hold fails the order is cancelled again.
func (h *Handler) PlaceOrder(ctx context.Context, actor order.Actor, cmd PlaceOrder) (*order.Order, error) {
	items := make([]order.Item, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = order.Item{Name: item.Name, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}

	// fail fast before anything is recorded; Freeze re-checks under the lock
	if actor.Role == order.RoleBuyer {
		total, err := order.Total(items)
		if err != nil {
			return nil, err
		}
		acct, err := h.walletSvc.Get(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if total > acct.Available() {
			return nil, fmt.Errorf("%w: order total %d, available %d", apperr.ErrInsufficientBalance, total, acct.Available())
		}
	}

	// 1. Place order (emits OrderPlaced event)
	o, err := h.orderSvc.Place(ctx, actor, order.PlaceRequest{
		ProducerID:          cmd.ProducerID,
		Items:               items,
		Category:            cmd.Category,
		Distance:            cmd.Distance,
		EstimatedDeliveryAt: cmd.EstimatedDeliveryAt,
	})
	if err != nil {
		return nil, err
	}
	if o.TotalAmount == 0 {
		return o, nil
	}

	// 2. Escrow the total (emits FundsFrozen event)
	_, err = h.walletSvc.Freeze(ctx, wallet.HoldRequest{
		AccountID: o.BuyerID,
		Amount:    o.TotalAmount,
		OrderID:   o.ID,
		TxID:      EscrowTxID(o.ID),
	})
	if err != nil {
		// Compensating transaction: cancel the order nobody paid for
		if _, cerr := h.orderSvc.Cancel(ctx, o.ID, actor, "payment hold failed"); cerr != nil {
			log.Printf("[Command] Failed to cancel order %s after escrow failure: %v", o.ID, cerr)
		}
		return nil, err
	}

	return o, nil
}

func (h *Handler) AcceptOrder(ctx context.Context, actor order.Actor, orderID string) (*order.Order, error) {
	return h.orderSvc.Accept(ctx, orderID, actor)
}

func (h *Handler) PickUpOrder(ctx context.Context, actor order.Actor, orderID string) (*order.Order, error) {
	return h.orderSvc.PickUp(ctx, orderID, actor)
}

func (h *Handler) StartTransit(ctx context.Context, actor order.Actor, orderID string) (*order.Order, error) {
	return h.orderSvc.StartTransit(ctx, orderID, actor)
}

func (h *Handler) UpdateETA(ctx context.Context, actor order.Actor, cmd UpdateETA) (*order.Order, error) {
	return h.orderSvc.UpdateETA(ctx, cmd.OrderID, actor, cmd.EstimatedDeliveryAt)
}

// DeliverOrder completes delivery and settles the escrow to the producer. If
// settlement fails the order stays delivered; SettleOrder finishes it.
func (h *Handler) DeliverOrder(ctx context.Context, actor order.Actor, orderID string) (*order.Order, error) {
	o, err := h.orderSvc.Deliver(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if err := h.settle(ctx, o); err != nil {
		return nil, fmt.Errorf("order %s delivered, settlement pending: %w", orderID, err)
	}
	return o, nil
}

// CancelOrder cancels the order and returns the escrow to the buyer in full
func (h *Handler) CancelOrder(ctx context.Context, actor order.Actor, cmd CancelOrder) (*order.Order, error) {
	o, err := h.orderSvc.Cancel(ctx, cmd.OrderID, actor, cmd.Reason)
	if err != nil {
		return nil, err
	}
	if err := h.settle(ctx, o); err != nil {
		return nil, fmt.Errorf("order %s cancelled, refund pending: %w", cmd.OrderID, err)
	}
	return o, nil
}

// SettleOrder re-runs the ledger side of a delivered or cancelled order. It
// is safe to call repeatedly.
func (h *Handler) SettleOrder(ctx context.Context, actor order.Actor, orderID string) (*order.Order, error) {
	if actor.Role != order.RoleAdmin {
		return nil, ErrAdminOnly
	}
	o, err := h.orderSvc.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is %s", apperr.ErrInvalidTransition, orderID, o.Status)
	}
	if err := h.settle(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (h *Handler) settle(ctx context.Context, o *order.Order) error {
	if o.TotalAmount == 0 {
		return nil
	}
	switch o.Status {
	case order.StatusDelivered:
		_, err := h.walletSvc.SettleEscrow(ctx, wallet.SettleRequest{
			BuyerID:    o.BuyerID,
			ProducerID: o.ProducerID,
			OrderID:    o.ID,
			Category:   o.Category,
			TxID:       SettleTxID(o.ID),
		})
		return err
	case order.StatusCancelled:
		_, err := h.walletSvc.RefundEscrow(ctx, o.BuyerID, o.ID, RefundTxID(o.ID))
		if errors.Is(err, wallet.ErrHoldNotFound) {
			// cancelled before the hold was taken
			return nil
		}
		return err
	}
	return nil
}

// RefundOrder moves money from the producer back to the buyer after delivery
func (h *Handler) RefundOrder(ctx context.Context, actor order.Actor, cmd RefundOrder) (*wallet.Receipt, error) {
	o, err := h.orderSvc.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if actor.ID != o.ProducerID && actor.Role != order.RoleAdmin {
		return nil, fmt.Errorf("%w: only the producer refunds order %s", apperr.ErrUnauthorizedActor, o.ID)
	}
	if o.Status != order.StatusDelivered {
		return nil, fmt.Errorf("%w: order %s is %s, only delivered orders are refunded", apperr.ErrInvalidTransition, o.ID, o.Status)
	}
	if cmd.Amount > o.TotalAmount {
		return nil, fmt.Errorf("%w: refund %d exceeds order total %d", apperr.ErrInvalidAmount, cmd.Amount, o.TotalAmount)
	}
	// earlier partial refunds count against the total under the wallet lock
	return h.walletSvc.Refund(ctx, wallet.RefundRequest{
		FromID:  o.ProducerID,
		ToID:    o.BuyerID,
		Amount:  cmd.Amount,
		OrderID: o.ID,
		TxID:    txIDOrNew(cmd.TransactionID),
		Limit:   o.TotalAmount,
	})
}

// ============================================
// Wallet
// ============================================

// Wallet commands always act on the caller's own account.

func (h *Handler) OpenWallet(ctx context.Context, actor order.Actor, cmd OpenWallet) (*wallet.Account, error) {
	return h.walletSvc.OpenAccount(ctx, wallet.OpenAccountRequest{
		AccountID:     actor.ID,
		Currency:      cmd.Currency,
		SpendingLimit: cmd.SpendingLimit,
	})
}

// AddPaymentMethod registers the method and verifies it with the gateway. A
// method the gateway rejects is removed again.
func (h *Handler) AddPaymentMethod(ctx context.Context, actor order.Actor, cmd AddPaymentMethod) (*wallet.PaymentMethod, error) {
	m, err := h.walletSvc.AddPaymentMethod(ctx, actor.ID, wallet.AddPaymentMethodRequest{
		Type:       wallet.MethodType(cmd.Type),
		Identifier: cmd.Identifier,
		Limits:     wallet.Limits{PerTransaction: cmd.PerTransaction, Daily: cmd.Daily, Monthly: cmd.Monthly},
	})
	if err != nil {
		return nil, err
	}

	err = h.gateway.VerifyMethod(ctx, gateway.VerifyRequest{
		AccountID:  actor.ID,
		MethodID:   m.ID,
		MethodType: string(m.Type),
		Identifier: cmd.Identifier,
	})
	if err != nil {
		if rerr := h.walletSvc.RemovePaymentMethod(ctx, actor.ID, m.ID); rerr != nil {
			log.Printf("[Command] Failed to remove rejected method %s: %v", m.ID, rerr)
		}
		return nil, err
	}
	if err := h.walletSvc.VerifyPaymentMethod(ctx, actor.ID, m.ID); err != nil {
		return nil, err
	}
	m.Verified = true
	return m, nil
}

func (h *Handler) SetDefaultPaymentMethod(ctx context.Context, actor order.Actor, methodID string) error {
	return h.walletSvc.SetDefaultPaymentMethod(ctx, actor.ID, methodID)
}

func (h *Handler) RemovePaymentMethod(ctx context.Context, actor order.Actor, methodID string) error {
	return h.walletSvc.RemovePaymentMethod(ctx, actor.ID, methodID)
}

func (h *Handler) SetSpendingLimit(ctx context.Context, actor order.Actor, limit int64) error {
	return h.walletSvc.SetSpendingLimit(ctx, actor.ID, limit)
}

// TopUp charges the payment method through the gateway and credits the
// wallet. The gateway reference is derived from the account and transaction
// id, so a retried top-up is charged once.
func (h *Handler) TopUp(ctx context.Context, actor order.Actor, cmd TopUp) (*wallet.Receipt, error) {
	if cmd.Amount <= 0 {
		return nil, wallet.ErrNonPositiveAmount
	}
	acct, err := h.walletSvc.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	method, err := findMethod(acct, cmd.MethodID)
	if err != nil {
		return nil, err
	}
	txID := txIDOrNew(cmd.TransactionID)
	// an id owned by another account must not reach the gateway
	if err := h.walletSvc.CheckTransactionID(ctx, acct.ID, txID); err != nil {
		return nil, err
	}

	err = h.gateway.Charge(ctx, gateway.ChargeRequest{
		AccountID: acct.ID,
		MethodID:  method.ID,
		Amount:    cmd.Amount,
		Currency:  acct.Currency,
		Reference: gateway.Reference(acct.ID, txID),
	})
	if err != nil {
		return nil, err
	}

	return h.walletSvc.TopUp(ctx, wallet.TopUpRequest{
		AccountID: acct.ID,
		Amount:    cmd.Amount,
		MethodID:  method.ID,
		TxID:      txID,
	})
}

func findMethod(acct *wallet.Account, methodID string) (wallet.PaymentMethod, error) {
	for _, m := range acct.PaymentMethods {
		if (methodID == "" && m.IsDefault) || (methodID != "" && m.ID == methodID) {
			return m, nil
		}
	}
	return wallet.PaymentMethod{}, wallet.ErrPaymentMethodNotFound
}

// Withdraw requests a payout after checking the wallet PIN. The payout is
// confirmed later by the gateway.PayoutWorker.
func (h *Handler) Withdraw(ctx context.Context, actor order.Actor, cmd Withdraw) (*wallet.Receipt, error) {
	acct, err := h.walletSvc.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if acct.PINHash == "" {
		return nil, ErrPINRequired
	}
	if !auth.CheckPIN(cmd.PIN, acct.PINHash) {
		return nil, ErrIncorrectPIN
	}

	return h.walletSvc.Withdraw(ctx, wallet.WithdrawRequest{
		AccountID: actor.ID,
		Amount:    cmd.Amount,
		MethodID:  cmd.MethodID,
		TxID:      cmd.TransactionID,
	})
}

func (h *Handler) Pay(ctx context.Context, actor order.Actor, cmd Pay) (*wallet.Receipt, error) {
	return h.walletSvc.Pay(ctx, wallet.PayRequest{
		AccountID: actor.ID,
		Amount:    cmd.Amount,
		OrderID:   cmd.OrderID,
		Category:  cmd.Category,
		TxID:      cmd.TransactionID,
	})
}

// SetPIN sets or changes the withdrawal PIN. Changing it needs the current one.
func (h *Handler) SetPIN(ctx context.Context, actor order.Actor, cmd SetPIN) error {
	acct, err := h.walletSvc.Get(ctx, actor.ID)
	if err != nil {
		return err
	}
	if acct.PINHash != "" && !auth.CheckPIN(cmd.CurrentPIN, acct.PINHash) {
		return ErrIncorrectPIN
	}
	hash, err := auth.HashPIN(cmd.PIN)
	if err != nil {
		return err
	}
	return h.walletSvc.SetPIN(ctx, actor.ID, hash)
}

func (h *Handler) RedeemReward(ctx context.Context, actor order.Actor, cmd RedeemReward) (*wallet.Receipt, error) {
	return h.walletSvc.RedeemReward(ctx, wallet.RedeemRequest{
		AccountID: actor.ID,
		RewardID:  cmd.RewardID,
		TxID:      cmd.TransactionID,
	})
}

func (h *Handler) GrantReward(ctx context.Context, actor order.Actor, cmd GrantReward) (*wallet.Reward, error) {
	if actor.Role != order.RoleAdmin {
		return nil, ErrAdminOnly
	}
	return h.walletSvc.GrantReward(ctx, cmd.AccountID, wallet.Reward{
		Title:         cmd.Title,
		PointCost:     cmd.PointCost,
		MonetaryValue: cmd.MonetaryValue,
		ExpiresAt:     cmd.ExpiresAt,
	})
}

// ArchiveWallet closes an account; owners close their own, admins any
func (h *Handler) ArchiveWallet(ctx context.Context, actor order.Actor, accountID string) error {
	if accountID != actor.ID && actor.Role != order.RoleAdmin {
		return fmt.Errorf("%w: cannot archive another user's wallet", apperr.ErrUnauthorizedActor)
	}
	return h.walletSvc.Archive(ctx, accountID)
}
