// Package inbox keeps a per-subscriber copy of every notification so that
// subscribers who were offline can replay what they missed.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
)

// DefaultCap is how many recent notifications are kept per recipient
const DefaultCap = 500

type EventType string

const (
	TypeOrder     EventType = "order"
	TypeMessage   EventType = "message"
	TypeInventory EventType = "inventory"
	TypePayment   EventType = "payment"
	TypeSystem    EventType = "system"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var ErrNotificationNotFound = fmt.Errorf("notification %w", apperr.ErrNotFound)

// NotificationEvent is one notification as delivered to one recipient.
// Seq is assigned by the dispatcher and orders all notifications globally.
type NotificationEvent struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"`
	RecipientID   string          `json:"recipient_id"`
	Type          EventType       `json:"type"`
	Priority      Priority        `json:"priority"`
	Title         string          `json:"title"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Read          bool            `json:"read"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceEventID string          `json:"source_event_id,omitempty"`
}

// Store is an append-only notification queue per recipient
type Store interface {
	// Append stores e for e.RecipientID and evicts the oldest entries beyond
	// the cap. It reports false when the recipient already holds a
	// notification for the same non-empty SourceEventID.
	Append(ctx context.Context, e NotificationEvent) (bool, error)

	// List returns up to limit notifications with Seq > afterSeq, oldest first.
	// A limit <= 0 returns everything retained.
	List(ctx context.Context, recipientID string, afterSeq int64, limit int) ([]NotificationEvent, error)

	// MarkRead sets the read bit; marking twice is a no-op
	MarkRead(ctx context.Context, recipientID, id string) error

	UnreadCount(ctx context.Context, recipientID string) (int, error)

	// LastSeq is the highest sequence number stored for any recipient
	LastSeq(ctx context.Context) (int64, error)
}
