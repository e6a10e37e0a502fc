package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetVersion() int
	SetVersion(int)
	ApplyEvent(store.Event) error
}

// LoadAggregate rebuilds an aggregate from its latest snapshot plus the events
// after it. found is false when the aggregate has no history at all. A
// snapshot that no longer decodes into the aggregate is ignored and the full
// history replayed instead.
func LoadAggregate[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	id string,
	newAggregate func() T,
) (agg T, found bool, err error) {
	snapshot, err := eventStore.GetSnapshot(ctx, id)
	if err != nil {
		return agg, false, fmt.Errorf("load snapshot of %s: %w", id, err)
	}

	agg = newAggregate()
	var events []store.Event
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, agg); err != nil {
			log.Printf("[Aggregate] Snapshot of %s at v%d unreadable, replaying: %v", id, snapshot.Version, err)
			snapshot = nil
			agg = newAggregate()
		}
	}
	if snapshot != nil {
		events = eventStore.GetEventsFromVersion(ctx, id, snapshot.Version)
	} else {
		events = eventStore.GetEvents(id)
	}

	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			var zero T
			return zero, false, fmt.Errorf("apply %s v%d to %s: %w", event.EventType, event.Version, id, err)
		}
	}

	return agg, snapshot != nil || len(events) > 0, nil
}

// MaybeCreateSnapshot saves a snapshot when the last appended events carried
// the aggregate across a snapshot boundary.
func MaybeCreateSnapshot(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	aggregateType string,
	appended int,
) error {
	version := agg.GetVersion()
	if !store.SnapshotDue(version-appended, version) {
		return nil
	}

	snapshot, err := store.NewSnapshot(aggregateType, agg.GetID(), version, agg)
	if err != nil {
		return err
	}
	if err := eventStore.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("save snapshot of %s: %w", agg.GetID(), err)
	}
	return nil
}
