package store

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/marketplace-ledger/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	orderColumns = []string{"id", "producer_id", "buyer_id", "courier_id", "items", "category", "total_amount",
		"distance", "status", "cancel_reason", "estimated_delivery_at", "created_at", "updated_at"}
	transactionColumns = []string{"id", "account_id", "type", "amount", "currency", "status", "fees",
		"payment_method_ref", "order_id", "linked_transaction_id", "category", "created_at", "finalized_at"}
)

func TestPostgresReadStore_UpdateTransactionKeepsReversalLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	rs := NewPostgresReadStore(db)
	created := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectTransactionColumns+" WHERE account_id = $1 AND id = $2")).
		WithArgs("buyer-1", "wd-1").
		WillReturnRows(sqlmock.NewRows(transactionColumns).
			AddRow("wd-1", "buyer-1", "payout", 400, "USD", "pending", 6, "method-1", "", "", "", created, nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO read_transactions")).
		WithArgs("wd-1", "buyer-1", "payout", int64(400), "USD", "failed", int64(6), "method-1",
			"", "wd-1:reversal", "", created, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	found := rs.Update(readmodel.CollectionTransactions, readmodel.TransactionKey("buyer-1", "wd-1"), func(current any) any {
		tx := current.(*readmodel.TransactionReadModel)
		assert.Nil(t, tx.FinalizedAt)
		now := created.Add(time.Minute)
		tx.Status = "failed"
		tx.LinkedTransactionID = "wd-1:reversal"
		tx.FinalizedAt = &now
		return tx
	})

	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadStore_MissingOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	rs := NewPostgresReadStore(db)

	for range 2 {
		mock.ExpectQuery(regexp.QuoteMeta(selectOrderColumns + " WHERE id = $1")).
			WithArgs("order-404").
			WillReturnRows(sqlmock.NewRows(orderColumns))
	}

	_, ok := rs.Get(readmodel.CollectionOrders, "order-404")
	found := rs.Update(readmodel.CollectionOrders, "order-404", func(current any) any {
		t.Fatal("update function must not run for a missing order")
		return current
	})

	assert.False(t, ok)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadStore_GetAllSkipsUnreadableRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	rs := NewPostgresReadStore(db)
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectOrderColumns)).
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("order-1", "producer-1", "buyer-1", "", []byte(`[{"name":"Rye","quantity":1,"unit_price":300}]`),
				"bakery", 300, 1.5, "pending", "", ts, ts, ts).
			AddRow("order-2", "producer-1", "buyer-2", "", []byte(`not json`),
				"bakery", 300, 2.0, "pending", "", ts, ts, ts))

	all := rs.GetAll(readmodel.CollectionOrders)

	require.Len(t, all, 1)
	o := all[0].(*readmodel.OrderReadModel)
	assert.Equal(t, "order-1", o.ID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(300), o.Items[0].UnitPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadStore_MalformedTransactionKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	rs := NewPostgresReadStore(db)

	_, ok := rs.Get(readmodel.CollectionTransactions, "no-separator")

	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
