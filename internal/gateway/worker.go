package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/example/marketplace-ledger/internal/domain/wallet"
)

// Ledger is the part of the wallet service the worker drives
type Ledger interface {
	PendingPayouts(ctx context.Context) []wallet.PayoutRef
	ConfirmPayout(ctx context.Context, accountID, txID string, ok bool, reason string) (*wallet.Receipt, error)
}

type BackoffPolicy struct {
	Base      time.Duration
	Max       time.Duration
	MaxJitter time.Duration
}

// Delay returns base * 2^attempt capped at Max, plus a jitter derived from
// the key so retries of different payouts spread out deterministically.
func (p BackoffPolicy) Delay(key string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}
	delay := time.Duration(int64(p.Base) * factor)
	if delay > p.Max || delay <= 0 {
		delay = p.Max
	}
	if p.MaxJitter <= 0 {
		return delay
	}
	sum := sha256.Sum256([]byte(key + ":" + strconv.Itoa(attempt)))
	jitter := binary.BigEndian.Uint64(sum[:8]) % uint64(p.MaxJitter)
	return delay + time.Duration(jitter)
}

func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Base: time.Second, Max: 5 * time.Minute, MaxJitter: 500 * time.Millisecond}
}

type retryState struct {
	attempts int
	next     time.Time
}

// PayoutWorker submits pending payouts to the gateway and confirms them in
// the ledger once the gateway reports a final state. Transient errors leave
// the payout pending and schedule a retry.
type PayoutWorker struct {
	ledger   Ledger
	gateway  Gateway
	interval time.Duration
	backoff  BackoffPolicy
	now      func() time.Time

	mu        sync.Mutex
	submitted map[string]bool
	retries   map[string]*retryState
}

func NewPayoutWorker(ledger Ledger, gw Gateway, interval time.Duration, backoff BackoffPolicy) *PayoutWorker {
	return &PayoutWorker{
		ledger:    ledger,
		gateway:   gw,
		interval:  interval,
		backoff:   backoff,
		now:       time.Now,
		submitted: make(map[string]bool),
		retries:   make(map[string]*retryState),
	}
}

// WithClock replaces the time source used for retry scheduling
func (w *PayoutWorker) WithClock(now func() time.Time) *PayoutWorker {
	w.now = now
	return w
}

// Run polls until ctx is cancelled
func (w *PayoutWorker) Run(ctx context.Context) error {
	log.Printf("[PayoutWorker] Started, polling every %s", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			log.Println("[PayoutWorker] Stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce makes one pass over pending payouts and returns how many were
// finalized.
func (w *PayoutWorker) RunOnce(ctx context.Context) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	finalized := 0
	for _, ref := range w.ledger.PendingPayouts(ctx) {
		if ctx.Err() != nil {
			break
		}
		key := Reference(ref.AccountID, ref.TransactionID)
		if r, ok := w.retries[key]; ok && w.now().Before(r.next) {
			continue
		}
		done, err := w.process(ctx, ref, key)
		if err != nil {
			w.scheduleRetry(key, err)
			continue
		}
		delete(w.retries, key)
		if done {
			delete(w.submitted, key)
			finalized++
		}
	}
	return finalized
}

func (w *PayoutWorker) process(ctx context.Context, ref wallet.PayoutRef, key string) (bool, error) {
	if !w.submitted[key] {
		err := w.gateway.Payout(ctx, PayoutRequest{
			AccountID: ref.AccountID,
			MethodID:  ref.MethodRef,
			Amount:    ref.Net,
			Currency:  ref.Currency,
			Reference: key,
		})
		if errors.Is(err, ErrDeclined) {
			return true, w.confirm(ctx, ref, false, err.Error())
		}
		if err != nil {
			return false, err
		}
		w.submitted[key] = true
	}

	status, err := w.gateway.PayoutStatus(ctx, key)
	if errors.Is(err, ErrUnknownRef) {
		// the gateway lost it; submit again on the next pass
		delete(w.submitted, key)
		return false, err
	}
	if err != nil {
		return false, err
	}

	switch status.State {
	case PayoutSucceeded:
		return true, w.confirm(ctx, ref, true, "")
	case PayoutFailed:
		return true, w.confirm(ctx, ref, false, status.Reason)
	}
	return false, nil
}

func (w *PayoutWorker) confirm(ctx context.Context, ref wallet.PayoutRef, ok bool, reason string) error {
	r, err := w.ledger.ConfirmPayout(ctx, ref.AccountID, ref.TransactionID, ok, reason)
	if err != nil {
		return err
	}
	log.Printf("[PayoutWorker] Payout %s for %s is %s", ref.TransactionID, ref.AccountID, r.Transaction.Status)
	return nil
}

func (w *PayoutWorker) scheduleRetry(key string, err error) {
	r, ok := w.retries[key]
	if !ok {
		r = &retryState{}
		w.retries[key] = r
	}
	delay := w.backoff.Delay(key, r.attempts)
	r.attempts++
	r.next = w.now().Add(delay)
	log.Printf("[PayoutWorker] Payout %s not settled (attempt %d): %v, retrying in %s", key, r.attempts, err, delay)
}

// Attempts reports how many times the payout has been retried
func (w *PayoutWorker) Attempts(accountID, txID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.retries[Reference(accountID, txID)]; ok {
		return r.attempts
	}
	return 0
}
