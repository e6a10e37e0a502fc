package store

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// MarshalJSON returns the JSON encoding of the event
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct{ Alias }{Alias: Alias(e)})
}

// PendingEvent is an event that has not been assigned an id or version yet.
type PendingEvent struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

// EventStore is an in-memory event store that publishes committed events
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	all       []Event            // append order across aggregates
	snapshots map[string]*Snapshot
	publisher Publisher
}

func NewEventStore(publisher Publisher) *EventStore {
	return &EventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]*Snapshot),
		publisher: publisher,
	}
}

// Append stores a single event and publishes it
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	stored, err := es.AppendAll(ctx, []PendingEvent{{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	}})
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// AppendAll stores the batch under one lock, then publishes each event in order
func (es *EventStore) AppendAll(ctx context.Context, pending []PendingEvent) ([]Event, error) {
	encoded := make([]json.RawMessage, len(pending))
	for i, p := range pending {
		data, err := json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}
		encoded[i] = data
	}

	now := time.Now()
	stored := make([]Event, 0, len(pending))

	es.mu.Lock()
	next := make(map[string]int)
	for i, p := range pending {
		version, ok := next[p.AggregateID]
		if !ok {
			version = len(es.events[p.AggregateID])
		}
		version++
		next[p.AggregateID] = version

		stored = append(stored, Event{
			ID:            uuid.New().String(),
			AggregateID:   p.AggregateID,
			AggregateType: p.AggregateType,
			EventType:     p.EventType,
			Data:          encoded[i],
			Timestamp:     now,
			Version:       version,
		})
	}
	for _, e := range stored {
		es.events[e.AggregateID] = append(es.events[e.AggregateID], e)
		es.all = append(es.all, e)
	}
	es.mu.Unlock()

	publishAll(ctx, es.publisher, stored)
	return stored, nil
}

// publishAll forwards committed events. The log is the source of truth, so a
// publish failure is reported but does not undo the commit; consumers catch
// up through replay.
func publishAll(ctx context.Context, publisher Publisher, events []Event) {
	if publisher == nil {
		return
	}
	for _, e := range events {
		if err := publisher.Publish(ctx, e.AggregateID, e); err != nil {
			log.Printf("[EventStore] Failed to publish event %s (%s): %v", e.ID, e.EventType, err)
		}
	}
}

// GetEvents returns all events for an aggregate
func (es *EventStore) GetEvents(aggregateID string) []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...)
}

// GetEventsFromVersion returns events for an aggregate after fromVersion
func (es *EventStore) GetEventsFromVersion(_ context.Context, aggregateID string, fromVersion int) []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var out []Event
	for _, e := range es.events[aggregateID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out
}

// GetAllEvents returns all events in append order
func (es *EventStore) GetAllEvents() []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.all...)
}

// GetSnapshot returns the latest snapshot for an aggregate, or nil
func (es *EventStore) GetSnapshot(_ context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	s, ok := es.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// SaveSnapshot replaces the snapshot for an aggregate
func (es *EventStore) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	cp := *snapshot
	es.snapshots[snapshot.AggregateID] = &cp
	return nil
}
