package wallet

import (
	"context"
	"fmt"
	"log"

	"github.com/example/marketplace-ledger/internal/apperr"
)

type SettleRequest struct {
	BuyerID    string
	ProducerID string
	OrderID    string
	Category   string
	TxID       string
}

type RefundRequest struct {
	FromID  string
	ToID    string
	Amount  int64
	OrderID string
	TxID    string
	// Limit caps the refunds issued for OrderID, this one included. Zero
	// means no cap.
	Limit int64
}

// loadPair loads two distinct active accounts. The caller holds both locks.
func (s *Service) loadPair(ctx context.Context, firstID, secondID string) (*Account, *Account, error) {
	first, err := s.loadActive(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.loadActive(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

// SettleEscrow pays the producer out of the buyer's hold for a delivered
// order. The buyer's payment (with any cashback) and the producer's proceeds
// share the transaction id and are appended in one batch.
func (s *Service) SettleEscrow(ctx context.Context, req SettleRequest) (*Receipt, error) {
	if req.BuyerID == req.ProducerID {
		return nil, ErrSameAccount
	}
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.BuyerID, req.ProducerID, claimKey(txID))
	defer unlock()

	buyer, producer, err := s.loadPair(ctx, req.BuyerID, req.ProducerID)
	if err != nil {
		return nil, err
	}
	if r, err := buyer.replay(txID, OpSettle, 0, req.OrderID); r != nil || err != nil {
		if r != nil {
			if proceeds, ok := producer.Transactions[txID]; ok {
				r.Linked = append(r.Linked, proceeds)
			}
		}
		return r, err
	}
	var b batch
	if err := s.claim(&b, buyer.ID, txID, OpSettle); err != nil {
		return nil, err
	}
	if _, used := producer.Transactions[txID]; used {
		return nil, fmt.Errorf("%w: %s already used on producer account", apperr.ErrDuplicateTransaction, txID)
	}
	hold, ok := buyer.Holds[req.OrderID]
	if !ok {
		return nil, ErrHoldNotFound
	}

	now := s.now()
	payment := s.newTransaction(buyer, txID, TypePayment, OpSettle, DirectionDebit, hold.Amount, now)
	payment.OrderID = req.OrderID
	payment.Category = req.Category
	cashback := s.cashbackFor(buyer, &payment)

	proceeds := s.newTransaction(producer, txID, TypeTransfer, OpProceeds, DirectionCredit, hold.Amount, now)
	proceeds.OrderID = req.OrderID
	proceeds.Category = req.Category

	b.add(buyer.ID, EventEscrowSettled, LedgerEntry{
		Transaction: payment,
		Points:      s.policy.Points(hold.Amount),
		Tier:        s.policy.TierFor(buyer.TotalSpent + hold.Amount),
	})
	if cashback != nil {
		b.add(buyer.ID, EventCashbackCredited, LedgerEntry{Transaction: *cashback})
	}
	b.add(producer.ID, EventProceedsCredited, LedgerEntry{Transaction: proceeds})
	if err := s.commit(ctx, &b, buyer, producer); err != nil {
		return nil, err
	}

	log.Printf("[Wallet] Settled escrow for order %s: %d from %s to %s", req.OrderID, hold.Amount, buyer.ID, producer.ID)
	r := buyer.receipt(txID)
	r.Linked = append(r.Linked, producer.Transactions[txID])
	return r, nil
}

// RefundEscrow returns an order's hold to the buyer in full, without a fee
func (s *Service) RefundEscrow(ctx context.Context, accountID, orderID, txID string) (*Receipt, error) {
	txID = txIDOrNew(txID)

	unlock := s.locks.LockMany(accountID, claimKey(txID))
	defer unlock()

	acct, err := s.loadActive(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if r, err := acct.replay(txID, OpRefundEscrow, 0, orderID); r != nil || err != nil {
		return r, err
	}
	var b batch
	if err := s.claim(&b, acct.ID, txID, OpRefundEscrow); err != nil {
		return nil, err
	}
	hold, ok := acct.Holds[orderID]
	if !ok {
		return nil, ErrHoldNotFound
	}

	tx := s.newTransaction(acct, txID, TypeRefund, OpRefundEscrow, DirectionNone, hold.Amount, s.now())
	tx.OrderID = orderID
	tx.LinkedTransactionID = hold.TransactionID

	b.add(acct.ID, EventEscrowRefunded, LedgerEntry{Transaction: tx})
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	return acct.receipt(txID), nil
}

// Refund is a compensating transfer from one account to another, used when
// a delivered order has to be paid back. Partial refunds add up against the
// request's limit.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*Receipt, error) {
	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if req.FromID == req.ToID {
		return nil, ErrSameAccount
	}
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.FromID, req.ToID, claimKey(txID))
	defer unlock()

	from, to, err := s.loadPair(ctx, req.FromID, req.ToID)
	if err != nil {
		return nil, err
	}
	if r, err := from.replay(txID, OpRefundOut, req.Amount, req.OrderID); r != nil || err != nil {
		if r != nil {
			if in, ok := to.Transactions[txID]; ok {
				r.Linked = append(r.Linked, in)
			}
		}
		return r, err
	}
	var b batch
	if err := s.claim(&b, from.ID, txID, OpRefundOut); err != nil {
		return nil, err
	}
	if _, used := to.Transactions[txID]; used {
		return nil, fmt.Errorf("%w: %s already used on receiving account", apperr.ErrDuplicateTransaction, txID)
	}
	if req.Limit > 0 {
		if refunded := from.refundedFor(req.OrderID); req.Amount > req.Limit-refunded {
			return nil, fmt.Errorf("%w: order %s already refunded %d of %d", apperr.ErrLimitExceeded, req.OrderID, refunded, req.Limit)
		}
	}
	if req.Amount > from.Available() {
		return nil, insufficient(from, req.Amount)
	}

	now := s.now()
	out := s.newTransaction(from, txID, TypeRefund, OpRefundOut, DirectionDebit, req.Amount, now)
	out.OrderID = req.OrderID
	in := s.newTransaction(to, txID, TypeRefund, OpRefundIn, DirectionCredit, req.Amount, now)
	in.OrderID = req.OrderID

	b.add(from.ID, EventRefundIssued, LedgerEntry{Transaction: out})
	b.add(to.ID, EventRefundReceived, LedgerEntry{Transaction: in})
	if err := s.commit(ctx, &b, from, to); err != nil {
		return nil, err
	}

	r := from.receipt(txID)
	r.Linked = append(r.Linked, to.Transactions[txID])
	return r, nil
}
