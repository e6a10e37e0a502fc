package dispatch

import (
	"context"
	"sort"

	"github.com/example/marketplace-ledger/internal/inbox"
)

// Subscription yields a subscriber's notifications in sequence order, the
// inbox backlog first and live events after it.
type Subscription struct {
	subscriberID string
	live         chan inbox.NotificationEvent
	out          chan inbox.NotificationEvent
	cancel       context.CancelFunc
}

func newSubscription(subscriberID string, buffer int) *Subscription {
	return &Subscription{
		subscriberID: subscriberID,
		live:         make(chan inbox.NotificationEvent, buffer),
		out:          make(chan inbox.NotificationEvent),
	}
}

// Events is closed when the subscription ends
func (s *Subscription) Events() <-chan inbox.NotificationEvent {
	return s.out
}

func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscription) offer(e inbox.NotificationEvent) bool {
	select {
	case s.live <- e:
		return true
	default:
		return false
	}
}

// pump emits the backlog then live events. A live event that was also in
// the backlog is skipped.
func (s *Subscription) pump(ctx context.Context, backlog []inbox.NotificationEvent, afterSeq int64) {
	defer close(s.out)

	sort.Slice(backlog, func(i, j int) bool { return backlog[i].Seq < backlog[j].Seq })
	replayed := make(map[int64]bool, len(backlog))
	send := func(e inbox.NotificationEvent) bool {
		select {
		case s.out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for _, e := range backlog {
		replayed[e.Seq] = true
		if !send(e) {
			return
		}
	}
	for {
		select {
		case e := <-s.live:
			if e.Seq <= afterSeq || replayed[e.Seq] {
				delete(replayed, e.Seq)
				continue
			}
			if !send(e) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
