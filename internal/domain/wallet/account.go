package wallet

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

const AggregateType = "Account"

type Tier string

const (
	TierBasic    Tier = "basic"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type TransactionType string

const (
	TypePayment  TransactionType = "payment"
	TypeRefund   TransactionType = "refund"
	TypePayout   TransactionType = "payout"
	TypeTopUp    TransactionType = "topup"
	TypeTransfer TransactionType = "transfer"
	TypeCashback TransactionType = "cashback"
	TypeReward   TransactionType = "reward"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Operation names the wallet call that produced a transaction. Retries are
// matched against it.
type Operation string

const (
	OpTopUp         Operation = "topup"
	OpWithdraw      Operation = "withdraw"
	OpPayoutReverse Operation = "payout_reversal"
	OpPay           Operation = "pay"
	OpCashback      Operation = "cashback"
	OpFreeze        Operation = "freeze"
	OpRelease       Operation = "release"
	OpSettle        Operation = "settle_escrow"
	OpProceeds      Operation = "proceeds"
	OpRefundEscrow  Operation = "refund_escrow"
	OpRefundOut     Operation = "refund_out"
	OpRefundIn      Operation = "refund_in"
	OpRedeem        Operation = "redeem_reward"
)

// Direction is how a transaction moved the balance
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
	DirectionNone   Direction = "none" // holds move funds between available and frozen only
)

type Transaction struct {
	ID                  string            `json:"id"`
	AccountID           string            `json:"account_id"`
	Type                TransactionType   `json:"type"`
	Operation           Operation         `json:"operation"`
	Direction           Direction         `json:"direction"`
	Amount              int64             `json:"amount"`
	Currency            string            `json:"currency"`
	Status              TransactionStatus `json:"status"`
	Fees                int64             `json:"fees"`
	PaymentMethodRef    string            `json:"payment_method_ref,omitempty"`
	OrderID             string            `json:"order_id,omitempty"`
	RewardRef           string            `json:"reward_ref,omitempty"`
	LinkedTransactionID string            `json:"linked_transaction_id,omitempty"`
	Category            string            `json:"category,omitempty"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
	FinalizedAt         *time.Time        `json:"finalized_at,omitempty"`
}

func (t Transaction) IsFinal() bool {
	return t.Status != StatusPending
}

// NetAmount is what reaches the counterparty after fees
func (t Transaction) NetAmount() int64 {
	return t.Amount - t.Fees
}

type Hold struct {
	OrderID       string    `json:"order_id"`
	Amount        int64     `json:"amount"`
	TransactionID string    `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type Account struct {
	ID                  string                 `json:"id"`
	Currency            string                 `json:"currency"`
	Balance             int64                  `json:"balance"`
	FrozenAmount        int64                  `json:"frozen_amount"`
	CreditLimit         int64                  `json:"credit_limit"`
	CreditUsed          int64                  `json:"credit_used"`
	PendingPayouts      int64                  `json:"pending_payouts"`
	LoyaltyPoints       int64                  `json:"loyalty_points"`
	CashbackEarned      int64                  `json:"cashback_earned"`
	Tier                Tier                   `json:"tier"`
	MonthlySpending     int64                  `json:"monthly_spending"`
	SpendingMonth       string                 `json:"spending_month,omitempty"`
	SpendingLimit       int64                  `json:"spending_limit"`
	TotalSpent          int64                  `json:"total_spent"`
	Archived            bool                   `json:"archived"`
	PINHash             string                 `json:"pin_hash,omitempty"`
	PaymentMethods      []PaymentMethod        `json:"payment_methods"`
	Rewards             map[string]Reward      `json:"rewards"`
	PurchasedCategories map[string]bool        `json:"purchased_categories"`
	Transactions        map[string]Transaction `json:"transactions"`
	TransactionOrder    []string               `json:"transaction_order"`
	Holds               map[string]Hold        `json:"holds"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	Version             int                    `json:"version"`
}

func newAccount() *Account {
	return &Account{
		Tier:                TierBasic,
		Rewards:             make(map[string]Reward),
		PurchasedCategories: make(map[string]bool),
		Transactions:        make(map[string]Transaction),
		Holds:               make(map[string]Hold),
	}
}

// clone deep-copies the account through its snapshot encoding
func (a *Account) clone() (*Account, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	cp := newAccount()
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Aggregate interface implementation
func (a *Account) GetID() string    { return a.ID }
func (a *Account) GetVersion() int  { return a.Version }
func (a *Account) SetVersion(v int) { a.Version = v }

// Available is the balance not held in escrow
func (a *Account) Available() int64 {
	return a.Balance - a.FrozenAmount
}

// CheckInvariants reports the first broken balance invariant, if any
func (a *Account) CheckInvariants() error {
	switch {
	case a.FrozenAmount < 0:
		return fmt.Errorf("account %s: frozen amount %d is negative", a.ID, a.FrozenAmount)
	case a.Balance < a.FrozenAmount:
		return fmt.Errorf("account %s: balance %d below frozen %d", a.ID, a.Balance, a.FrozenAmount)
	case a.CreditUsed < 0 || a.CreditUsed > a.CreditLimit:
		return fmt.Errorf("account %s: credit used %d outside limit %d", a.ID, a.CreditUsed, a.CreditLimit)
	case a.PendingPayouts < 0:
		return fmt.Errorf("account %s: pending payouts %d is negative", a.ID, a.PendingPayouts)
	case a.LoyaltyPoints < 0:
		return fmt.Errorf("account %s: loyalty points %d is negative", a.ID, a.LoyaltyPoints)
	}
	return nil
}

// refundedFor sums the refunds paid out of the account for an order
func (a *Account) refundedFor(orderID string) int64 {
	var total int64
	for _, tx := range a.Transactions {
		if tx.Operation == OpRefundOut && tx.OrderID == orderID {
			total += tx.Amount
		}
	}
	return total
}

// spentIn returns monthly spending for the "2006-01" month key
func (a *Account) spentIn(month string) int64 {
	if a.SpendingMonth != month {
		return 0
	}
	return a.MonthlySpending
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// History returns transactions ordered by timestamp, append order breaking ties
func (a *Account) History() []Transaction {
	out := make([]Transaction, 0, len(a.TransactionOrder))
	for _, id := range a.TransactionOrder {
		out = append(out, a.Transactions[id])
	}
	slices.SortStableFunc(out, func(x, y Transaction) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	return out
}

// replay returns the stored receipt when txID was already applied by the same
// operation. A nil receipt and nil error mean txID is unused. amount and
// orderID are compared only when set.
func (a *Account) replay(txID string, op Operation, amount int64, orderID string) (*Receipt, error) {
	tx, ok := a.Transactions[txID]
	if !ok {
		return nil, nil
	}
	if tx.Operation != op || (amount > 0 && tx.Amount != amount) || (orderID != "" && tx.OrderID != orderID) {
		return nil, fmt.Errorf("%w: %s was used for %s of %d", apperr.ErrDuplicateTransaction, txID, tx.Operation, tx.Amount)
	}
	r := a.receipt(txID)
	r.Replayed = true
	return r, nil
}

func (a *Account) receipt(txID string) *Receipt {
	tx := a.Transactions[txID]
	r := &Receipt{Transaction: tx}
	if linked, ok := a.Transactions[tx.LinkedTransactionID]; ok && tx.LinkedTransactionID != "" {
		r.Linked = append(r.Linked, linked)
	}
	return r
}

func (a *Account) record(tx Transaction) {
	if _, exists := a.Transactions[tx.ID]; !exists {
		a.TransactionOrder = append(a.TransactionOrder, tx.ID)
	}
	a.Transactions[tx.ID] = tx
}

func (a *Account) purchase(tx Transaction, tier Tier) {
	month := monthKey(tx.Timestamp)
	if a.SpendingMonth != month {
		a.SpendingMonth = month
		a.MonthlySpending = 0
	}
	a.MonthlySpending += tx.Amount
	a.TotalSpent += tx.Amount
	if tx.Category != "" {
		a.PurchasedCategories[tx.Category] = true
	}
	if tier != "" {
		a.Tier = tier
	}
}

// ApplyEvent applies a single event to the account state (implements aggregate.Aggregate)
func (a *Account) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventAccountOpened:
		var data AccountOpened
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.ID = data.AccountID
		a.Currency = data.Currency
		a.CreditLimit = data.CreditLimit
		a.SpendingLimit = data.SpendingLimit
		a.CreatedAt = data.OpenedAt
		a.UpdatedAt = data.OpenedAt
	case EventAccountArchived:
		var data AccountArchived
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Archived = true
		a.UpdatedAt = data.ArchivedAt
	case EventPaymentMethodAdded:
		var data PaymentMethodAdded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.PaymentMethods = append(a.PaymentMethods, data.Method)
		if data.Method.IsDefault {
			a.setDefaultMethod(data.Method.ID)
		}
		a.UpdatedAt = data.AddedAt
	case EventPaymentMethodVerified, EventDefaultPaymentMethodSet, EventPaymentMethodRemoved:
		var data PaymentMethodChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.applyMethodChange(event.EventType, data.MethodID)
		a.UpdatedAt = data.ChangedAt
	case EventSpendingLimitSet:
		var data SpendingLimitSet
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.SpendingLimit = data.Limit
		a.UpdatedAt = data.SetAt
	case EventPINSet:
		var data PINSet
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.PINHash = data.PINHash
		a.UpdatedAt = data.SetAt
	case EventRewardGranted:
		var data RewardGranted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Rewards[data.Reward.ID] = data.Reward
		a.UpdatedAt = data.GrantedAt
	case EventPayoutCompleted, EventPayoutFailed:
		var data PayoutFinalized
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		tx := a.Transactions[data.TransactionID]
		finalizedAt := data.FinalizedAt
		tx.Status = data.Status
		tx.FailureReason = data.Reason
		tx.FinalizedAt = &finalizedAt
		if data.ReversalID != "" {
			tx.LinkedTransactionID = data.ReversalID
		}
		a.Transactions[tx.ID] = tx
		a.PendingPayouts -= tx.Amount
		a.UpdatedAt = data.FinalizedAt
	default:
		var entry LedgerEntry
		if err := json.Unmarshal(event.Data, &entry); err != nil {
			return err
		}
		if err := a.applyLedgerEntry(event.EventType, entry); err != nil {
			return err
		}
	}
	a.Version = event.Version
	return nil
}

func (a *Account) applyLedgerEntry(eventType string, entry LedgerEntry) error {
	tx := entry.Transaction
	switch eventType {
	case EventTopUpCompleted:
		a.Balance += tx.Amount
		a.LoyaltyPoints += entry.Points
	case EventWithdrawalRequested:
		a.Balance -= tx.Amount
		a.PendingPayouts += tx.Amount
	case EventPayoutReversed, EventProceedsCredited, EventRefundReceived:
		a.Balance += tx.Amount
	case EventPaymentCompleted:
		a.Balance -= tx.Amount
		a.purchase(tx, entry.Tier)
	case EventCashbackCredited:
		a.Balance += tx.Amount
		a.CashbackEarned += tx.Amount
	case EventFundsFrozen:
		a.FrozenAmount += tx.Amount
		a.Holds[tx.OrderID] = Hold{OrderID: tx.OrderID, Amount: tx.Amount, TransactionID: tx.ID, CreatedAt: tx.Timestamp}
	case EventFundsReleased, EventEscrowRefunded:
		a.FrozenAmount -= tx.Amount
		delete(a.Holds, tx.OrderID)
	case EventEscrowSettled:
		a.Balance -= tx.Amount
		a.FrozenAmount -= tx.Amount
		delete(a.Holds, tx.OrderID)
		a.purchase(tx, entry.Tier)
		a.LoyaltyPoints += entry.Points
	case EventRefundIssued:
		a.Balance -= tx.Amount
	case EventRewardRedeemed:
		a.LoyaltyPoints -= entry.Points
		a.Balance += tx.Amount
		if reward, ok := a.Rewards[entry.RewardID]; ok {
			redeemedAt := tx.Timestamp
			reward.Redeemed = true
			reward.RedeemedAt = &redeemedAt
			a.Rewards[reward.ID] = reward
		}
	default:
		return fmt.Errorf("unknown account event type %q", eventType)
	}
	a.record(tx)
	a.UpdatedAt = tx.Timestamp
	return nil
}
