package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/example/marketplace-ledger/internal/readmodel"
)

// PostgresReadStore implements ReadStoreInterface using PostgreSQL
type PostgresReadStore struct {
	db *sql.DB
	mu sync.Mutex // serializes read-modify-write in Update
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

// Set stores a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) {
	switch collection {
	case readmodel.CollectionOrders:
		rs.setOrder(data.(*readmodel.OrderReadModel))
	case readmodel.CollectionTransactions:
		rs.setTransaction(data.(*readmodel.TransactionReadModel))
	}
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool) {
	switch collection {
	case readmodel.CollectionOrders:
		return rs.getOrder(id)
	case readmodel.CollectionTransactions:
		return rs.getTransaction(id)
	}
	return nil, false
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(collection string) []any {
	switch collection {
	case readmodel.CollectionOrders:
		return rs.getAllOrders()
	case readmodel.CollectionTransactions:
		return rs.getAllTransactions()
	}
	return []any{}
}

// Update modifies a read model using an update function
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	current, found := rs.Get(collection, id)
	if !found {
		return false
	}
	rs.Set(collection, id, updateFn(current))
	return true
}

// Order operations

const selectOrderColumns = `SELECT id, producer_id, buyer_id, courier_id, items, category, total_amount, distance,
	status, cancel_reason, estimated_delivery_at, created_at, updated_at FROM read_orders`

func (rs *PostgresReadStore) setOrder(o *readmodel.OrderReadModel) {
	itemsJSON, _ := json.Marshal(o.Items)
	_, err := rs.db.Exec(`
		INSERT INTO read_orders (id, producer_id, buyer_id, courier_id, items, category, total_amount, distance,
			status, cancel_reason, estimated_delivery_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			courier_id = EXCLUDED.courier_id,
			status = EXCLUDED.status,
			cancel_reason = EXCLUDED.cancel_reason,
			estimated_delivery_at = EXCLUDED.estimated_delivery_at,
			updated_at = EXCLUDED.updated_at
	`, o.ID, o.ProducerID, o.BuyerID, o.CourierID, itemsJSON, o.Category, o.TotalAmount, o.Distance,
		o.Status, o.CancelReason, o.EstimatedDeliveryAt, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		log.Printf("[PostgresReadStore] Error setting order: %v", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*readmodel.OrderReadModel, error) {
	var o readmodel.OrderReadModel
	var itemsJSON []byte
	err := row.Scan(&o.ID, &o.ProducerID, &o.BuyerID, &o.CourierID, &itemsJSON, &o.Category, &o.TotalAmount,
		&o.Distance, &o.Status, &o.CancelReason, &o.EstimatedDeliveryAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, err
	}
	return &o, nil
}

func (rs *PostgresReadStore) getOrder(id string) (any, bool) {
	o, err := scanOrder(rs.db.QueryRow(selectOrderColumns+` WHERE id = $1`, id))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[PostgresReadStore] Error getting order %s: %v", id, err)
		}
		return nil, false
	}
	return o, true
}

// collect runs a listing query and keeps every row that scans. Bad rows are
// logged and skipped so one corrupt projection does not hide the rest.
func collect[T any](db *sql.DB, what, query string, scan func(rowScanner) (T, error)) []any {
	rows, err := db.Query(query)
	if err != nil {
		log.Printf("[PostgresReadStore] Error listing %s: %v", what, err)
		return nil
	}
	defer rows.Close()

	out := []any{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			log.Printf("[PostgresReadStore] Error scanning %s row: %v", what, err)
			continue
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[PostgresReadStore] Error reading %s: %v", what, err)
	}
	return out
}

func (rs *PostgresReadStore) getAllOrders() []any {
	return collect(rs.db, "orders", selectOrderColumns+` ORDER BY created_at ASC`, scanOrder)
}

// Transaction operations

const selectTransactionColumns = `SELECT id, account_id, type, amount, currency, status, fees, payment_method_ref,
	order_id, linked_transaction_id, category, created_at, finalized_at FROM read_transactions`

func (rs *PostgresReadStore) setTransaction(t *readmodel.TransactionReadModel) {
	_, err := rs.db.Exec(`
		INSERT INTO read_transactions (id, account_id, type, amount, currency, status, fees, payment_method_ref,
			order_id, linked_transaction_id, category, created_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (account_id, id) DO UPDATE SET
			status = EXCLUDED.status,
			linked_transaction_id = EXCLUDED.linked_transaction_id,
			finalized_at = EXCLUDED.finalized_at
	`, t.ID, t.AccountID, t.Type, t.Amount, t.Currency, t.Status, t.Fees, t.PaymentMethodRef,
		t.OrderID, t.LinkedTransactionID, t.Category, t.Timestamp, t.FinalizedAt)
	if err != nil {
		log.Printf("[PostgresReadStore] Error setting transaction: %v", err)
	}
}

func scanTransaction(row rowScanner) (*readmodel.TransactionReadModel, error) {
	var t readmodel.TransactionReadModel
	var finalizedAt sql.NullTime
	err := row.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Currency, &t.Status, &t.Fees,
		&t.PaymentMethodRef, &t.OrderID, &t.LinkedTransactionID, &t.Category, &t.Timestamp, &finalizedAt)
	if err != nil {
		return nil, err
	}
	if finalizedAt.Valid {
		ts := finalizedAt.Time
		t.FinalizedAt = &ts
	}
	return &t, nil
}

// getTransaction looks a transaction up by its "<account>/<tx>" read key.
// Transaction ids are only unique per account.
func (rs *PostgresReadStore) getTransaction(key string) (any, bool) {
	accountID, id, ok := strings.Cut(key, "/")
	if !ok {
		return nil, false
	}
	t, err := scanTransaction(rs.db.QueryRow(selectTransactionColumns+` WHERE account_id = $1 AND id = $2`, accountID, id))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[PostgresReadStore] Error getting transaction %s: %v", key, err)
		}
		return nil, false
	}
	return t, true
}

func (rs *PostgresReadStore) getAllTransactions() []any {
	return collect(rs.db, "transactions", selectTransactionColumns+` ORDER BY created_at ASC`, scanTransaction)
}
