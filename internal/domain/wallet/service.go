package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/example/marketplace-ledger/internal/domain/aggregate"
	"github.com/example/marketplace-ledger/internal/infrastructure/locker"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/google/uuid"
)

var (
	ErrAccountNotFound         = fmt.Errorf("wallet account %w", apperr.ErrNotFound)
	ErrAccountExists           = fmt.Errorf("%w: wallet account already open", apperr.ErrConflict)
	ErrAccountArchived         = fmt.Errorf("%w: wallet account is archived", apperr.ErrConflict)
	ErrAccountBusy             = fmt.Errorf("%w: account has pending payouts or escrow holds", apperr.ErrConflict)
	ErrPaymentMethodNotFound   = fmt.Errorf("payment method %w", apperr.ErrNotFound)
	ErrPaymentMethodUnverified = fmt.Errorf("%w: payment method is not verified", apperr.ErrConflict)
	ErrTransactionNotFound     = fmt.Errorf("transaction %w", apperr.ErrNotFound)
	ErrNotAPayout              = fmt.Errorf("%w: transaction is not a payout", apperr.ErrInvalidInput)
	ErrHoldNotFound            = fmt.Errorf("escrow hold %w", apperr.ErrNotFound)
	ErrHoldExists              = fmt.Errorf("%w: order already has an escrow hold", apperr.ErrConflict)
	ErrRewardNotFound          = fmt.Errorf("reward %w", apperr.ErrNotFound)
	ErrNonPositiveAmount       = fmt.Errorf("%w: amount must be positive", apperr.ErrInvalidAmount)
	ErrSameAccount             = fmt.Errorf("%w: source and destination accounts are the same", apperr.ErrInvalidInput)
	ErrTransactionIDTaken      = fmt.Errorf("%w: transaction id belongs to another account", apperr.ErrDuplicateTransaction)

	// ErrInvariantViolated rejects a batch that would leave an account
	// inconsistent. Nothing is appended.
	ErrInvariantViolated = errors.New("wallet invariant violated")
)

// Receipt is the result of a money operation. Replayed is set when the
// transaction id had already been applied and nothing changed.
type Receipt struct {
	Transaction Transaction   `json:"transaction"`
	Linked      []Transaction `json:"linked,omitempty"`
	Replayed    bool          `json:"replayed"`
}

type OpenAccountRequest struct {
	AccountID     string
	Currency      string
	CreditLimit   int64
	SpendingLimit int64
}

type Service struct {
	eventStore store.EventStoreInterface
	locks      *locker.Keyed
	policy     Policy
	payouts    *payoutIndex
	now        func() time.Time
}

func NewService(es store.EventStoreInterface, policy Policy) *Service {
	return &Service{
		eventStore: es,
		locks:      locker.NewKeyed(),
		policy:     policy,
		payouts:    newPayoutIndex(),
		now:        time.Now,
	}
}

// WithClock replaces the time source used for transaction timestamps
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Policy() Policy { return s.policy }

// batch collects the events of one operation so they are appended together
type batch struct {
	pending []store.PendingEvent
}

func (b *batch) add(accountID, eventType string, data any) {
	b.pending = append(b.pending, store.PendingEvent{
		AggregateID:   accountID,
		AggregateType: AggregateType,
		EventType:     eventType,
		Data:          data,
	})
}

func (s *Service) load(ctx context.Context, accountID string) (*Account, error) {
	acct, found, err := aggregate.LoadAggregate(ctx, s.eventStore, accountID, newAccount)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

func (s *Service) loadActive(ctx context.Context, accountID string) (*Account, error) {
	acct, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Archived {
		return nil, ErrAccountArchived
	}
	return acct, nil
}

// commit checks the batch against copies of the accounts, appends it
// atomically and folds the stored events into the loaded accounts. Nothing is
// appended for an empty batch or one that would break an invariant.
func (s *Service) commit(ctx context.Context, b *batch, accounts ...*Account) error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := verify(b, accounts); err != nil {
		log.Printf("[Wallet] Rejected batch: %v", err)
		return err
	}
	stored, err := s.eventStore.AppendAll(ctx, b.pending)
	if err != nil {
		return err
	}

	byID := make(map[string]*Account, len(accounts))
	appended := make(map[string]int, len(accounts))
	for _, acct := range accounts {
		byID[acct.ID] = acct
	}
	for _, event := range stored {
		if event.AggregateType == ClaimAggregateType {
			continue
		}
		acct := byID[event.AggregateID]
		if err := acct.ApplyEvent(event); err != nil {
			return err
		}
		appended[acct.ID]++
		s.payouts.observe(event)
	}

	for _, acct := range accounts {
		if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, acct, AggregateType, appended[acct.ID]); err != nil {
			log.Printf("[Wallet] Failed to create snapshot for account %s: %v", acct.ID, err)
		}
	}
	return nil
}

// verify applies the batch to copies of the accounts and reports the first
// broken invariant.
func verify(b *batch, accounts []*Account) error {
	copies := make(map[string]*Account, len(accounts))
	for _, acct := range accounts {
		cp, err := acct.clone()
		if err != nil {
			return err
		}
		copies[acct.ID] = cp
	}
	for _, p := range b.pending {
		if p.AggregateType == ClaimAggregateType {
			continue
		}
		cp, ok := copies[p.AggregateID]
		if !ok {
			return fmt.Errorf("event %s for unloaded account %s", p.EventType, p.AggregateID)
		}
		data, err := json.Marshal(p.Data)
		if err != nil {
			return err
		}
		event := store.Event{AggregateID: p.AggregateID, AggregateType: p.AggregateType, EventType: p.EventType, Data: data, Version: cp.Version + 1}
		if err := cp.ApplyEvent(event); err != nil {
			return err
		}
	}
	for _, acct := range accounts {
		if err := copies[acct.ID].CheckInvariants(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolated, err)
		}
	}
	return nil
}

// mutate runs fn against one active account under its lock and commits
// whatever events fn added.
func (s *Service) mutate(ctx context.Context, accountID string, fn func(*Account, time.Time, *batch) error) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	acct, err := s.loadActive(ctx, accountID)
	if err != nil {
		return err
	}
	var b batch
	if err := fn(acct, s.now(), &b); err != nil {
		return err
	}
	return s.commit(ctx, &b, acct)
}

func txIDOrNew(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func claimKey(txID string) string {
	return "txid:" + txID
}

// claimOwner returns the account that first used txID, or "" if none has
func (s *Service) claimOwner(txID string) (string, error) {
	events := s.eventStore.GetEvents(claimKey(txID))
	if len(events) == 0 {
		return "", nil
	}
	var claim TransactionIDClaimed
	if err := json.Unmarshal(events[0].Data, &claim); err != nil {
		return "", fmt.Errorf("read claim for %s: %w", txID, err)
	}
	return claim.AccountID, nil
}

// claim adds the claim of txID for owner to the batch, unless owner already
// holds it. The caller holds the claim key's lock.
func (s *Service) claim(b *batch, owner, txID string, op Operation) error {
	current, err := s.claimOwner(txID)
	if err != nil {
		return err
	}
	switch current {
	case owner:
		return nil
	case "":
		b.pending = append(b.pending, store.PendingEvent{
			AggregateID:   claimKey(txID),
			AggregateType: ClaimAggregateType,
			EventType:     EventTransactionIDClaimed,
			Data: TransactionIDClaimed{
				TransactionID: txID,
				AccountID:     owner,
				Operation:     op,
				ClaimedAt:     s.now(),
			},
		})
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrTransactionIDTaken, txID)
	}
}

// CheckTransactionID fails when txID is already used by another account.
// Callers check before side effects that happen outside the ledger.
func (s *Service) CheckTransactionID(_ context.Context, accountID, txID string) error {
	owner, err := s.claimOwner(txID)
	if err != nil {
		return err
	}
	if owner != "" && owner != accountID {
		return fmt.Errorf("%w: %s", ErrTransactionIDTaken, txID)
	}
	return nil
}

func (s *Service) newTransaction(acct *Account, id string, typ TransactionType, op Operation, dir Direction, amount int64, now time.Time) Transaction {
	return Transaction{
		ID:          id,
		AccountID:   acct.ID,
		Type:        typ,
		Operation:   op,
		Direction:   dir,
		Amount:      amount,
		Currency:    acct.Currency,
		Status:      StatusCompleted,
		Timestamp:   now,
		FinalizedAt: &now,
	}
}

func (s *Service) OpenAccount(ctx context.Context, req OpenAccountRequest) (*Account, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", apperr.ErrInvalidInput)
	}
	if req.CreditLimit < 0 || req.SpendingLimit < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", apperr.ErrInvalidAmount)
	}
	currency := req.Currency
	if currency == "" {
		currency = s.policy.Currency
	}

	unlock := s.locks.Lock(req.AccountID)
	defer unlock()

	if _, err := s.load(ctx, req.AccountID); err == nil {
		return nil, ErrAccountExists
	} else if err != ErrAccountNotFound {
		return nil, err
	}

	acct := newAccount()
	acct.ID = req.AccountID
	var b batch
	b.add(acct.ID, EventAccountOpened, AccountOpened{
		AccountID:     req.AccountID,
		Currency:      currency,
		CreditLimit:   req.CreditLimit,
		SpendingLimit: req.SpendingLimit,
		OpenedAt:      s.now(),
	})
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	log.Printf("[Wallet] Opened account %s (%s)", acct.ID, acct.Currency)
	return acct, nil
}

// Archive closes the account to further mutation. Archiving twice is a no-op.
func (s *Service) Archive(ctx context.Context, accountID string) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	acct, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.Archived {
		return nil
	}
	if acct.PendingPayouts > 0 || len(acct.Holds) > 0 {
		return ErrAccountBusy
	}
	var b batch
	b.add(acct.ID, EventAccountArchived, AccountArchived{AccountID: acct.ID, ArchivedAt: s.now()})
	return s.commit(ctx, &b, acct)
}

func (s *Service) Get(ctx context.Context, accountID string) (*Account, error) {
	return s.load(ctx, accountID)
}

// Transactions returns the account's ledger ordered by timestamp
func (s *Service) Transactions(ctx context.Context, accountID string) ([]Transaction, error) {
	acct, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return acct.History(), nil
}
