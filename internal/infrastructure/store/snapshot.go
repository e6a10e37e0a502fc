package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotThreshold is the event interval between snapshots of one aggregate
const SnapshotThreshold = 10

// Snapshot is an aggregate's serialized state as of Version
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewSnapshot(aggregateType, aggregateID string, version int, state any) (*Snapshot, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s state: %w", aggregateType, aggregateID, err)
	}
	return &Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		State:         raw,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// SnapshotDue reports whether moving from version from to version to crossed
// a multiple of SnapshotThreshold. A batch can append several events at once,
// so the exact multiple may be skipped over.
func SnapshotDue(from, to int) bool {
	return to > 0 && to > from && to/SnapshotThreshold != from/SnapshotThreshold
}
