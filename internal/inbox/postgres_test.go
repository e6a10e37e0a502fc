package inbox

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, 3), mock
}

func TestPostgresStore_Append(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	e := note("alice", 7, "src-7")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inbox_events")).
		WithArgs("alice", "n-7", int64(7), "order", "medium", "event 7", []byte(e.Payload), false, e.Timestamp, "src-7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM inbox_events")).
		WithArgs("alice", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.Append(context.Background(), e)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Append_Duplicate(t *testing.T) {
	s, mock := newMockedPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inbox_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.Append(context.Background(), note("alice", 7, "src-7"))

	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet(), "no eviction after a skipped insert")
}

func TestPostgresStore_Append_NoSourceIsNull(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	e := note("alice", 1, "")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inbox_events")).
		WithArgs("alice", "n-1", int64(1), "order", "medium", "event 1", []byte(e.Payload), false, e.Timestamp, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM inbox_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.Append(context.Background(), e)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "seq", "recipient_id", "type", "priority", "title", "payload", "read", "created_at", "source_event_id"}).
		AddRow("n-4", 4, "alice", "payment", "urgent", "Payout failed", []byte(`{"amount":400}`), false, ts, "src-4").
		AddRow("n-5", 5, "alice", "order", "low", "Picked up", nil, true, ts, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM inbox_events WHERE recipient_id = $1 AND seq > $2 ORDER BY seq ASC LIMIT $3")).
		WithArgs("alice", int64(3), 10).
		WillReturnRows(rows)

	got, err := s.List(context.Background(), "alice", 3, 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TypePayment, got[0].Type)
	assert.Equal(t, PriorityUrgent, got[0].Priority)
	assert.Equal(t, "src-4", got[0].SourceEventID)
	assert.JSONEq(t, `{"amount":400}`, string(got[0].Payload))
	assert.True(t, got[1].Read)
	assert.Empty(t, got[1].SourceEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkRead(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE inbox_events SET read = TRUE")).
		WithArgs("alice", "n-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE inbox_events SET read = TRUE")).
		WithArgs("alice", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.MarkRead(ctx, "alice", "n-1"))
	assert.ErrorIs(t, s.MarkRead(ctx, "alice", "missing"), ErrNotificationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Counts(t *testing.T) {
	s, mock := newMockedPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM inbox_events WHERE recipient_id = $1 AND read = FALSE")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(seq), 0) FROM inbox_events")).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(42))

	n, err := s.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}
