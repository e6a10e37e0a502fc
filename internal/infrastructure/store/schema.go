package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the event log, snapshot and read model tables. The
// (aggregate_id, version) key makes concurrent appends to one aggregate fail
// instead of interleaving.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT        PRIMARY KEY,
	aggregate_id   TEXT        NOT NULL,
	aggregate_type TEXT        NOT NULL,
	event_type     TEXT        NOT NULL,
	data           JSONB       NOT NULL,
	version        INTEGER     NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS events_created_at ON events (created_at);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT        PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	version        INTEGER     NOT NULL,
	state          JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS read_orders (
	id                    TEXT PRIMARY KEY,
	producer_id           TEXT NOT NULL,
	buyer_id              TEXT NOT NULL,
	courier_id            TEXT NOT NULL DEFAULT '',
	items                 JSONB NOT NULL,
	category              TEXT NOT NULL DEFAULT '',
	total_amount          BIGINT NOT NULL,
	distance              DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                TEXT NOT NULL,
	cancel_reason         TEXT NOT NULL DEFAULT '',
	estimated_delivery_at TIMESTAMPTZ NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS read_transactions (
	id                    TEXT NOT NULL,
	account_id            TEXT NOT NULL,
	type                  TEXT NOT NULL,
	amount                BIGINT NOT NULL,
	currency              TEXT NOT NULL,
	status                TEXT NOT NULL,
	fees                  BIGINT NOT NULL DEFAULT 0,
	payment_method_ref    TEXT NOT NULL DEFAULT '',
	order_id              TEXT NOT NULL DEFAULT '',
	linked_transaction_id TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL,
	finalized_at          TIMESTAMPTZ,
	PRIMARY KEY (account_id, id)
);
`

// Migrate creates any missing tables
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate event store schema: %w", err)
	}
	return nil
}
