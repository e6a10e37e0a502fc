package wallet

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

// PayoutRef identifies a pending payout awaiting gateway confirmation
type PayoutRef struct {
	AccountID     string
	TransactionID string
	Amount        int64
	Net           int64
	Currency      string
	MethodRef     string
}

func payoutKey(accountID, txID string) string {
	return accountID + "/" + txID
}

// payoutIndex holds the payouts that were requested but not finalized. It is
// built from the event log on first use and then kept current by commit, so
// a poll does not rescan the log.
type payoutIndex struct {
	mu      sync.Mutex
	loaded  bool
	pending map[string]PayoutRef
	order   []string
}

func newPayoutIndex() *payoutIndex {
	return &payoutIndex{pending: make(map[string]PayoutRef)}
}

// observe folds one committed event into the index. Events seen before the
// first load are skipped; the load reads them from the log.
func (x *payoutIndex) observe(event store.Event) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.loaded {
		x.apply(event)
	}
}

// apply is idempotent so an event read by the load and observed again by
// commit counts once. The caller holds mu.
func (x *payoutIndex) apply(event store.Event) {
	if event.AggregateType != AggregateType {
		return
	}
	switch event.EventType {
	case EventWithdrawalRequested:
		var entry LedgerEntry
		if err := json.Unmarshal(event.Data, &entry); err != nil {
			log.Printf("[Wallet] Skipping unreadable withdrawal event %s: %v", event.ID, err)
			return
		}
		key := payoutKey(event.AggregateID, entry.Transaction.ID)
		if _, seen := x.pending[key]; !seen {
			x.order = append(x.order, key)
		}
		x.pending[key] = PayoutRef{
			AccountID:     event.AggregateID,
			TransactionID: entry.Transaction.ID,
			Amount:        entry.Transaction.Amount,
			Net:           entry.Transaction.NetAmount(),
			Currency:      entry.Transaction.Currency,
			MethodRef:     entry.Transaction.PaymentMethodRef,
		}
	case EventPayoutCompleted, EventPayoutFailed:
		var data PayoutFinalized
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		delete(x.pending, payoutKey(event.AggregateID, data.TransactionID))
	}
}

func (x *payoutIndex) load(events []store.Event) {
	for _, event := range events {
		x.apply(event)
	}
	x.loaded = true
}

// snapshot returns the pending payouts in request order and drops finalized
// keys from the order list.
func (x *payoutIndex) snapshot() []PayoutRef {
	refs := make([]PayoutRef, 0, len(x.pending))
	kept := make(map[string]bool, len(x.pending))
	live := x.order[:0]
	for _, key := range x.order {
		if ref, ok := x.pending[key]; ok && !kept[key] {
			kept[key] = true
			refs = append(refs, ref)
			live = append(live, key)
		}
	}
	x.order = live
	return refs
}

// PendingPayouts lists payouts that were requested but never finalized, so
// confirmation can resume after a restart. The event log is scanned once per
// process.
func (s *Service) PendingPayouts(ctx context.Context) []PayoutRef {
	s.payouts.mu.Lock()
	defer s.payouts.mu.Unlock()
	if !s.payouts.loaded {
		s.payouts.load(s.eventStore.GetAllEvents())
	}
	return s.payouts.snapshot()
}
