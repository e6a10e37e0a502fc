package store

import (
	"context"
	"fmt"

	"github.com/example/marketplace-ledger/internal/apperr"
)

// ErrVersionConflict means another writer appended to the aggregate first
var ErrVersionConflict = fmt.Errorf("%w: aggregate version already taken", apperr.ErrConflict)

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)

	// AppendAll stores a batch of events atomically: either every event is
	// persisted or none is.
	AppendAll(ctx context.Context, pending []PendingEvent) ([]Event, error)

	GetEvents(aggregateID string) []Event
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) []Event
	GetAllEvents() []Event

	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// Publisher forwards committed events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ReadStoreInterface defines the interface for read model storage
type ReadStoreInterface interface {
	// Set stores a read model
	Set(collection, id string, data any)

	// Get retrieves a read model by id
	Get(collection, id string) (any, bool)

	// GetAll retrieves all items in a collection
	GetAll(collection string) []any

	// Update modifies a read model using an update function
	Update(collection, id string, updateFn func(current any) any) bool
}
