package mocks

import (
	"context"
	"sync"

	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

// MockEventStore records appends and snapshot writes and keeps the log in an
// unpublished in-memory store.EventStore. Setting AppendErr makes every
// append fail after it has been recorded.
type MockEventStore struct {
	log *store.EventStore

	mu                sync.Mutex
	AppendCalls       []AppendCall
	SaveSnapshotCalls []store.Snapshot
	GetAllEventsCalls int
	AppendErr         error
}

// AppendCall is one event handed to Append or AppendAll
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{log: store.NewEventStore(nil)}
}

func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	stored, err := m.AppendAll(ctx, []store.PendingEvent{{
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

func (m *MockEventStore) AppendAll(ctx context.Context, pending []store.PendingEvent) ([]store.Event, error) {
	m.mu.Lock()
	for _, p := range pending {
		m.AppendCalls = append(m.AppendCalls, AppendCall(p))
	}
	failure := m.AppendErr
	m.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	return m.log.AppendAll(ctx, pending)
}

func (m *MockEventStore) GetEvents(aggregateID string) []store.Event {
	return m.log.GetEvents(aggregateID)
}

func (m *MockEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) []store.Event {
	return m.log.GetEventsFromVersion(ctx, aggregateID, fromVersion)
}

func (m *MockEventStore) GetAllEvents() []store.Event {
	m.mu.Lock()
	m.GetAllEventsCalls++
	m.mu.Unlock()
	return m.log.GetAllEvents()
}

func (m *MockEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	return m.log.GetSnapshot(ctx, aggregateID)
}

func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	m.SaveSnapshotCalls = append(m.SaveSnapshotCalls, *snapshot)
	m.mu.Unlock()
	return m.log.SaveSnapshot(ctx, snapshot)
}

// ResetCalls forgets recorded calls; stored events stay.
func (m *MockEventStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls = nil
	m.SaveSnapshotCalls = nil
	m.GetAllEventsCalls = 0
}

// AddEvent seeds history without recording a call
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any) error {
	_, err := m.log.Append(context.Background(), aggregateID, aggregateType, eventType, data)
	return err
}
