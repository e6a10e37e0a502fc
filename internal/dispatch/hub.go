// Package dispatch fans notifications out to subscribers. Every notification
// is persisted to each recipient's inbox before live delivery, so a
// subscriber that misses a push can replay it from the inbox.
package dispatch

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/marketplace-ledger/internal/inbox"
	"github.com/example/marketplace-ledger/internal/infrastructure/locker"
	"github.com/google/uuid"
)

const defaultBuffer = 64

type Hub struct {
	inbox  inbox.Store
	seq    atomic.Int64
	buffer int
	now    func() time.Time

	// held per recipient from sequence assignment through live push, so a
	// recipient's events are stored and pushed in sequence order
	recipients *locker.Keyed

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates a hub whose sequence continues from the inbox's last seq
func NewHub(ctx context.Context, store inbox.Store) (*Hub, error) {
	last, err := store.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	h := &Hub{
		inbox:      store,
		buffer:     defaultBuffer,
		now:        time.Now,
		recipients: locker.NewKeyed(),
		subs:       make(map[string]map[*Subscription]struct{}),
	}
	h.seq.Store(last)
	return h, nil
}

// WithBuffer sets the live channel size of new subscriptions
func (h *Hub) WithBuffer(n int) *Hub {
	if n > 0 {
		h.buffer = n
	}
	return h
}

// Publish delivers one copy of e to each distinct recipient. It returns the
// copies that were stored; a recipient that already holds the same
// SourceEventID gets nothing.
func (h *Hub) Publish(ctx context.Context, e inbox.NotificationEvent, recipients ...string) ([]inbox.NotificationEvent, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now()
	}

	seen := make(map[string]bool, len(recipients))
	var delivered []inbox.NotificationEvent
	for _, r := range recipients {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true

		cp, ok, err := h.deliver(ctx, e, r)
		if err != nil {
			return delivered, err
		}
		if ok {
			delivered = append(delivered, cp)
		}
	}
	return delivered, nil
}

// deliver stores and pushes one recipient's copy of e
func (h *Hub) deliver(ctx context.Context, e inbox.NotificationEvent, recipient string) (inbox.NotificationEvent, bool, error) {
	unlock := h.recipients.Lock(recipient)
	defer unlock()

	cp := e
	cp.ID = uuid.New().String()
	cp.RecipientID = recipient
	cp.Seq = h.seq.Add(1)
	cp.Read = false

	ok, err := h.inbox.Append(ctx, cp)
	if err != nil || !ok {
		return cp, false, err
	}
	h.push(cp)
	return cp, true, nil
}

// push hands e to every live subscription of its recipient without blocking.
// A full buffer drops the live copy; the inbox still has it.
func (h *Hub) push(e inbox.NotificationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[e.RecipientID] {
		if !sub.offer(e) {
			log.Printf("[Dispatcher] Subscriber %s is slow, dropped live event seq=%d", e.RecipientID, e.Seq)
		}
	}
}

// Subscribe registers a live subscription and replays the inbox backlog with
// Seq > afterSeq first. The subscription ends when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, subscriberID string, afterSeq int64) (*Subscription, error) {
	sub := newSubscription(subscriberID, h.buffer)

	// Register before reading the backlog so nothing published in between is
	// missed; duplicates are filtered by sequence in the pump.
	h.mu.Lock()
	if h.subs[subscriberID] == nil {
		h.subs[subscriberID] = make(map[*Subscription]struct{})
	}
	h.subs[subscriberID][sub] = struct{}{}
	h.mu.Unlock()

	backlog, err := h.inbox.List(ctx, subscriberID, afterSeq, 0)
	if err != nil {
		h.remove(sub)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub.cancel = cancel
	go func() {
		defer h.remove(sub)
		sub.pump(ctx, backlog, afterSeq)
	}()
	return sub, nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[sub.subscriberID], sub)
	if len(h.subs[sub.subscriberID]) == 0 {
		delete(h.subs, sub.subscriberID)
	}
}

// Subscribers returns the number of live subscriptions for subscriberID
func (h *Hub) Subscribers(subscriberID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subscriberID])
}

// Inbox exposes the backing store for read-side queries
func (h *Hub) Inbox() inbox.Store {
	return h.inbox
}
