package inbox

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the inbox table. Source ids are unique per recipient so a
// re-delivered domain event is stored once.
const Schema = `
CREATE TABLE IF NOT EXISTS inbox_events (
	recipient_id    TEXT        NOT NULL,
	id              TEXT        NOT NULL,
	seq             BIGINT      NOT NULL,
	type            TEXT        NOT NULL,
	priority        TEXT        NOT NULL,
	title           TEXT        NOT NULL,
	payload         JSONB,
	read            BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	source_event_id TEXT,
	PRIMARY KEY (recipient_id, id),
	UNIQUE (recipient_id, source_event_id)
);
CREATE INDEX IF NOT EXISTS inbox_events_recipient_seq ON inbox_events (recipient_id, seq);
`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	cap int
}

func NewPostgresStore(db *sql.DB, capacity int) *PostgresStore {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &PostgresStore{db: db, cap: capacity}
}

// Migrate creates the inbox table when it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (s *PostgresStore) Append(ctx context.Context, e NotificationEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inbox_events (recipient_id, id, seq, type, priority, title, payload, read, created_at, source_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`, e.RecipientID, e.ID, e.Seq, string(e.Type), string(e.Priority), e.Title, []byte(e.Payload), e.Read, e.Timestamp, nullable(e.SourceEventID))
	if err != nil {
		return false, fmt.Errorf("append notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM inbox_events
		WHERE recipient_id = $1 AND seq < (
			SELECT seq FROM inbox_events WHERE recipient_id = $1 ORDER BY seq DESC OFFSET $2 LIMIT 1
		)
	`, e.RecipientID, s.cap-1)
	if err != nil {
		return true, fmt.Errorf("evict notifications: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) List(ctx context.Context, recipientID string, afterSeq int64, limit int) ([]NotificationEvent, error) {
	q := `SELECT id, seq, recipient_id, type, priority, title, payload, read, created_at, source_event_id
		FROM inbox_events WHERE recipient_id = $1 AND seq > $2 ORDER BY seq ASC`
	args := []any{recipientID, afterSeq}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []NotificationEvent
	for rows.Next() {
		var e NotificationEvent
		var typ, priority string
		var payload []byte
		var source sql.NullString
		if err := rows.Scan(&e.ID, &e.Seq, &e.RecipientID, &typ, &priority, &e.Title, &payload, &e.Read, &e.Timestamp, &source); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.Priority = Priority(priority)
		e.Payload = payload
		e.SourceEventID = source.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, recipientID, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE inbox_events SET read = TRUE WHERE recipient_id = $1 AND id = $2`, recipientID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbox_events WHERE recipient_id = $1 AND read = FALSE`, recipientID).Scan(&n)
	return n, err
}

func (s *PostgresStore) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM inbox_events`).Scan(&seq)
	return seq, err
}
