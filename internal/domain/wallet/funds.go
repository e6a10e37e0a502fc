package wallet

import (
	"context"
	"fmt"
	"log"

	"github.com/example/marketplace-ledger/internal/apperr"
)

type TopUpRequest struct {
	AccountID string
	Amount    int64
	MethodID  string // empty selects the default method
	TxID      string
}

type WithdrawRequest struct {
	AccountID string
	Amount    int64
	MethodID  string
	TxID      string
}

type PayRequest struct {
	AccountID string
	Amount    int64
	OrderID   string
	Category  string
	TxID      string
}

type HoldRequest struct {
	AccountID string
	Amount    int64
	OrderID   string
	TxID      string
}

func insufficient(acct *Account, amount int64) error {
	return fmt.Errorf("%w: need %d, available %d", apperr.ErrInsufficientBalance, amount, acct.Available())
}

func (s *Service) checkSpending(acct *Account, amount int64, month string) error {
	if acct.SpendingLimit <= 0 {
		return nil
	}
	if spent := acct.spentIn(month); spent+amount > acct.SpendingLimit {
		return fmt.Errorf("%w: monthly spending limit %d (spent %d)", apperr.ErrLimitExceeded, acct.SpendingLimit, spent)
	}
	return nil
}

// TopUp credits funds received through a payment method. The method fee is
// recorded on the transaction and loyalty points accrue on the gross amount.
func (s *Service) TopUp(ctx context.Context, req TopUpRequest) (*Receipt, error) {
	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.AccountID, claimKey(txID))
	defer unlock()

	acct, err := s.loadActive(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if r, err := acct.replay(txID, OpTopUp, req.Amount, ""); r != nil || err != nil {
		return r, err
	}
	var b batch
	if err := s.claim(&b, acct.ID, txID, OpTopUp); err != nil {
		return nil, err
	}
	method, err := acct.method(req.MethodID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := acct.checkMethodLimits(method, req.Amount, now); err != nil {
		return nil, err
	}

	tx := s.newTransaction(acct, txID, TypeTopUp, OpTopUp, DirectionCredit, req.Amount, now)
	tx.Fees = s.policy.TopUpFee(method.Type, req.Amount)
	tx.PaymentMethodRef = method.ID

	b.add(acct.ID, EventTopUpCompleted, LedgerEntry{Transaction: tx, Points: s.policy.Points(req.Amount)})
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	return acct.receipt(txID), nil
}

// Withdraw moves funds out to a verified method. The balance drops at once
// and the payout stays pending until the gateway confirms it.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (*Receipt, error) {
	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.AccountID, claimKey(txID))
	defer unlock()

	acct, err := s.loadActive(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if r, err := acct.replay(txID, OpWithdraw, req.Amount, ""); r != nil || err != nil {
		return r, err
	}
	var b batch
	if err := s.claim(&b, acct.ID, txID, OpWithdraw); err != nil {
		return nil, err
	}
	if req.Amount > acct.Available() {
		return nil, insufficient(acct, req.Amount)
	}
	method, err := acct.method(req.MethodID)
	if err != nil {
		return nil, err
	}
	if !method.Verified {
		return nil, ErrPaymentMethodUnverified
	}
	now := s.now()
	if err := acct.checkMethodLimits(method, req.Amount, now); err != nil {
		return nil, err
	}

	tx := s.newTransaction(acct, txID, TypePayout, OpWithdraw, DirectionDebit, req.Amount, now)
	tx.Status = StatusPending
	tx.FinalizedAt = nil
	tx.Fees = s.policy.WithdrawFee(req.Amount)
	tx.PaymentMethodRef = method.ID

	b.add(acct.ID, EventWithdrawalRequested, LedgerEntry{Transaction: tx})
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	log.Printf("[Wallet] Payout %s requested for %s: %d (fee %d)", txID, acct.ID, tx.Amount, tx.Fees)
	return acct.receipt(txID), nil
}

// ConfirmPayout finalizes a pending payout exactly once. A failed payout is
// compensated with a refund that restores the balance. Confirming an already
// final payout replays the recorded outcome.
func (s *Service) ConfirmPayout(ctx context.Context, accountID, txID string, ok bool, reason string) (*Receipt, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	acct, err := s.loadActive(ctx, accountID)
	if err != nil {
		return nil, err
	}
	tx, found := acct.Transactions[txID]
	if !found {
		return nil, ErrTransactionNotFound
	}
	if tx.Operation != OpWithdraw {
		return nil, ErrNotAPayout
	}
	if tx.IsFinal() {
		r := acct.receipt(txID)
		r.Replayed = true
		return r, nil
	}

	now := s.now()
	var b batch
	if ok {
		b.add(acct.ID, EventPayoutCompleted, PayoutFinalized{
			AccountID:     acct.ID,
			TransactionID: txID,
			Status:        StatusCompleted,
			FinalizedAt:   now,
		})
	} else {
		reversal := s.newTransaction(acct, txID+":reversal", TypeRefund, OpPayoutReverse, DirectionCredit, tx.Amount, now)
		reversal.LinkedTransactionID = txID
		b.add(acct.ID, EventPayoutFailed, PayoutFinalized{
			AccountID:     acct.ID,
			TransactionID: txID,
			Status:        StatusFailed,
			Reason:        reason,
			ReversalID:    reversal.ID,
			FinalizedAt:   now,
		})
		b.add(acct.ID, EventPayoutReversed, LedgerEntry{Transaction: reversal})
	}
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	return acct.receipt(txID), nil
}

// Pay debits a purchase and credits any cashback it earns as a linked transaction
func (s *Service) Pay(ctx context.Context, req PayRequest) (*Receipt, error) {
	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.AccountID, claimKey(txID))
	defer unlock()

	acct, err := s.loadActive(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if r, err := acct.replay(txID, OpPay, req.Amount, req.OrderID); r != nil || err != nil {
		return r, err
	}
	var b batch
	if err := s.claim(&b, acct.ID, txID, OpPay); err != nil {
		return nil, err
	}
	if req.Amount > acct.Available() {
		return nil, insufficient(acct, req.Amount)
	}
	now := s.now()
	if err := s.checkSpending(acct, req.Amount, monthKey(now)); err != nil {
		return nil, err
	}

	payment := s.newTransaction(acct, txID, TypePayment, OpPay, DirectionDebit, req.Amount, now)
	payment.OrderID = req.OrderID
	payment.Category = req.Category

	cashback := s.cashbackFor(acct, &payment)
	b.add(acct.ID, EventPaymentCompleted, LedgerEntry{
		Transaction: payment,
		Tier:        s.policy.TierFor(acct.TotalSpent + req.Amount),
	})
	if cashback != nil {
		b.add(acct.ID, EventCashbackCredited, LedgerEntry{Transaction: *cashback})
	}
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	return acct.receipt(txID), nil
}

// cashbackFor builds the cashback earned by payment, linking both ways, or nil
func (s *Service) cashbackFor(acct *Account, payment *Transaction) *Transaction {
	amount := s.policy.Cashback(payment.Amount, payment.Category, !acct.PurchasedCategories[payment.Category])
	if amount <= 0 {
		return nil
	}
	cb := s.newTransaction(acct, payment.ID+":cashback", TypeCashback, OpCashback, DirectionCredit, amount, payment.Timestamp)
	cb.OrderID = payment.OrderID
	cb.Category = payment.Category
	cb.LinkedTransactionID = payment.ID
	payment.LinkedTransactionID = cb.ID
	return &cb
}

// Freeze escrows funds for an order. The balance is unchanged; the funds stop
// being available until released, refunded or settled.
func (s *Service) Freeze(ctx context.Context, req HoldRequest) (*Receipt, error) {
	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: escrow needs an order id", apperr.ErrInvalidInput)
	}
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.AccountID, claimKey(txID))
	defer unlock()

	acct, err := s.loadActive(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if r, err := acct.replay(txID, OpFreeze, req.Amount, req.OrderID); r != nil || err != nil {
		return r, err
	}
	var b batch
	if err := s.claim(&b, acct.ID, txID, OpFreeze); err != nil {
		return nil, err
	}
	if _, held := acct.Holds[req.OrderID]; held {
		return nil, ErrHoldExists
	}
	if req.Amount > acct.Available() {
		return nil, insufficient(acct, req.Amount)
	}
	now := s.now()
	if err := s.checkSpending(acct, req.Amount, monthKey(now)); err != nil {
		return nil, err
	}

	tx := s.newTransaction(acct, txID, TypeTransfer, OpFreeze, DirectionNone, req.Amount, now)
	tx.OrderID = req.OrderID

	b.add(acct.ID, EventFundsFrozen, LedgerEntry{Transaction: tx})
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	return acct.receipt(txID), nil
}

// Release returns an order's escrow to the available balance. A non-zero
// amount must match the hold.
func (s *Service) Release(ctx context.Context, req HoldRequest) (*Receipt, error) {
	if req.Amount < 0 {
		return nil, ErrNonPositiveAmount
	}
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.AccountID, claimKey(txID))
	defer unlock()

	acct, err := s.loadActive(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if r, err := acct.replay(txID, OpRelease, req.Amount, req.OrderID); r != nil || err != nil {
		return r, err
	}
	var b batch
	if err := s.claim(&b, acct.ID, txID, OpRelease); err != nil {
		return nil, err
	}
	hold, ok := acct.Holds[req.OrderID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	if req.Amount > 0 && req.Amount != hold.Amount {
		return nil, fmt.Errorf("%w: release of %d does not match hold of %d", apperr.ErrInvalidAmount, req.Amount, hold.Amount)
	}

	tx := s.newTransaction(acct, txID, TypeTransfer, OpRelease, DirectionNone, hold.Amount, s.now())
	tx.OrderID = req.OrderID
	tx.LinkedTransactionID = hold.TransactionID

	b.add(acct.ID, EventFundsReleased, LedgerEntry{Transaction: tx})
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	return acct.receipt(txID), nil
}
