package inbox

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store
type MemoryStore struct {
	mu      sync.RWMutex
	cap     int
	events  map[string][]NotificationEvent // recipient -> events in seq order
	sources map[string]map[string]bool     // recipient -> retained source event ids
	lastSeq int64
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &MemoryStore{
		cap:     capacity,
		events:  make(map[string][]NotificationEvent),
		sources: make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) Append(_ context.Context, e NotificationEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.sources[e.RecipientID]
	if seen == nil {
		seen = make(map[string]bool)
		s.sources[e.RecipientID] = seen
	}
	if e.SourceEventID != "" && seen[e.SourceEventID] {
		return false, nil
	}

	list := s.events[e.RecipientID]
	// Seqs normally arrive increasing; keep the slice sorted if they race.
	i := sort.Search(len(list), func(i int) bool { return list[i].Seq > e.Seq })
	list = append(list, NotificationEvent{})
	copy(list[i+1:], list[i:])
	list[i] = e

	if over := len(list) - s.cap; over > 0 {
		for _, old := range list[:over] {
			delete(seen, old.SourceEventID)
		}
		list = append([]NotificationEvent(nil), list[over:]...)
	}
	s.events[e.RecipientID] = list
	if e.SourceEventID != "" {
		seen[e.SourceEventID] = true
	}
	if e.Seq > s.lastSeq {
		s.lastSeq = e.Seq
	}
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, recipientID string, afterSeq int64, limit int) ([]NotificationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.events[recipientID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Seq > afterSeq })
	out := list[i:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]NotificationEvent(nil), out...), nil
}

func (s *MemoryStore) MarkRead(_ context.Context, recipientID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.events[recipientID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (s *MemoryStore) UnreadCount(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events[recipientID] {
		if !e.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) LastSeq(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq, nil
}
