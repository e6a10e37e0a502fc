package wallet

import "time"

const (
	EventAccountOpened           = "AccountOpened"
	EventAccountArchived         = "AccountArchived"
	EventPaymentMethodAdded      = "PaymentMethodAdded"
	EventPaymentMethodVerified   = "PaymentMethodVerified"
	EventDefaultPaymentMethodSet = "DefaultPaymentMethodSet"
	EventPaymentMethodRemoved    = "PaymentMethodRemoved"
	EventSpendingLimitSet        = "SpendingLimitSet"
	EventPINSet                  = "PINSet"
	EventRewardGranted           = "RewardGranted"

	// Ledger events, each carrying a LedgerEntry unless noted
	EventTopUpCompleted      = "TopUpCompleted"
	EventWithdrawalRequested = "WithdrawalRequested"
	EventPayoutCompleted     = "PayoutCompleted" // PayoutFinalized
	EventPayoutFailed        = "PayoutFailed"    // PayoutFinalized
	EventPayoutReversed      = "PayoutReversed"
	EventPaymentCompleted    = "PaymentCompleted"
	EventCashbackCredited    = "CashbackCredited"
	EventFundsFrozen         = "FundsFrozen"
	EventFundsReleased       = "FundsReleased"
	EventEscrowSettled       = "EscrowSettled"
	EventEscrowRefunded      = "EscrowRefunded"
	EventProceedsCredited    = "ProceedsCredited"
	EventRefundIssued        = "RefundIssued"
	EventRefundReceived      = "RefundReceived"
	EventRewardRedeemed      = "RewardRedeemed"
)

type AccountOpened struct {
	AccountID     string    `json:"account_id"`
	Currency      string    `json:"currency"`
	CreditLimit   int64     `json:"credit_limit"`
	SpendingLimit int64     `json:"spending_limit"`
	OpenedAt      time.Time `json:"opened_at"`
}

type AccountArchived struct {
	AccountID  string    `json:"account_id"`
	ArchivedAt time.Time `json:"archived_at"`
}

type PaymentMethodAdded struct {
	AccountID string        `json:"account_id"`
	Method    PaymentMethod `json:"method"`
	AddedAt   time.Time     `json:"added_at"`
}

// PaymentMethodChanged is the payload of verify, set-default and remove events
type PaymentMethodChanged struct {
	AccountID string    `json:"account_id"`
	MethodID  string    `json:"method_id"`
	ChangedAt time.Time `json:"changed_at"`
}

type SpendingLimitSet struct {
	AccountID string    `json:"account_id"`
	Limit     int64     `json:"limit"`
	SetAt     time.Time `json:"set_at"`
}

type PINSet struct {
	AccountID string    `json:"account_id"`
	PINHash   string    `json:"pin_hash"`
	SetAt     time.Time `json:"set_at"`
}

type RewardGranted struct {
	AccountID string    `json:"account_id"`
	Reward    Reward    `json:"reward"`
	GrantedAt time.Time `json:"granted_at"`
}

// LedgerEntry records one transaction and the side effects that come with it
type LedgerEntry struct {
	Transaction Transaction `json:"transaction"`
	Points      int64       `json:"points,omitempty"`
	Tier        Tier        `json:"tier,omitempty"`
	RewardID    string      `json:"reward_id,omitempty"`
}

// PayoutFinalized moves a pending payout to its final status
type PayoutFinalized struct {
	AccountID     string            `json:"account_id"`
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	ReversalID    string            `json:"reversal_id,omitempty"`
	FinalizedAt   time.Time         `json:"finalized_at"`
}

// Transaction ids are unique across the ledger. The first account to use an
// id appends a claim to the "txid:<id>" stream in the same batch as its
// ledger entry. The stream never holds more than one event.
const (
	ClaimAggregateType        = "TransactionID"
	EventTransactionIDClaimed = "TransactionIDClaimed"
)

type TransactionIDClaimed struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Operation     Operation `json:"operation"`
	ClaimedAt     time.Time `json:"claimed_at"`
}
