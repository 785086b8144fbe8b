package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutMarkPaidOnlyOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	q := regexp.QuoteMeta("UPDATE checkouts SET status = 'paid', last_payment_id = ?, paid_at = ? WHERE group_correlation_id = ? AND status <> 'paid'")

	mock.ExpectExec(q).WithArgs("p1", at, "g1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("p1", at, "g1").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewCheckoutRepo(db)
	first, err := repo.MarkPaid(context.Background(), "g1", "p1", at)
	require.NoError(t, err)
	second, err := repo.MarkPaid(context.Background(), "g1", "p1", at)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutGetByGroupNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("FROM checkouts WHERE group_correlation_id = ").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewCheckoutRepo(db).GetByGroup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckoutUnnotifiedPaidSkipsSlotBacked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	before := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	paid := before.Add(-time.Hour)
	cols := []string{"id", "group_correlation_id", "mode", "title", "amount", "currency", "student_name", "student_email", "intake_form",
		"processor_intent_id", "checkout_url", "status", "last_payment_id", "paid_at", "notified_at", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'paid' AND notified_at IS NULL AND mode <> 'individual' AND paid_at < ?")).
		WithArgs(before, 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(9, "g9", "flat_fee", "Intensive", "1500000.00", "IDR", "Bo", "bo@x.com", nil,
				"intent-g9", nil, "paid", "pay-9", paid, nil, paid, paid))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE checkouts SET notified_at = ? WHERE group_correlation_id = ? AND notified_at IS NULL")).
		WithArgs(before, "g9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCheckoutRepo(db)
	got, err := repo.UnnotifiedPaid(context.Background(), before, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "g9", got[0].GroupCorrelationID)
	assert.Equal(t, "pay-9", *got[0].LastPaymentID)
	assert.Nil(t, got[0].NotifiedAt)
	assert.Nil(t, got[0].CheckoutURL)
	require.NoError(t, repo.MarkNotified(context.Background(), "g9", before))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentEventRecordQuotesInvalidJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_events")).
		WithArgs("midtrans", "", "", "", `"type=payment&id=1"`, at).
		WillReturnResult(sqlmock.NewResult(5, 1))

	id, err := NewPaymentEventRepo(db).Record(context.Background(), PaymentEvent{
		Provider: "midtrans", Payload: []byte("type=payment&id=1"), ReceivedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewProcessedCache(rdb, time.Hour)
	ctx := context.Background()

	mock.ExpectExists("enroll:webhook:processed:p1").SetVal(0)
	mock.ExpectSet("enroll:webhook:processed:p1", "1", time.Hour).SetVal("OK")
	mock.ExpectExists("enroll:webhook:processed:p1").SetVal(1)

	seen, err := cache.Seen(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, cache.Mark(ctx, "p1"))
	seen, err = cache.Seen(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedCacheWithoutRedisIsNoop(t *testing.T) {
	cache := NewProcessedCache(nil, 0)
	seen, err := cache.Seen(context.Background(), "p1")
	assert.NoError(t, err)
	assert.False(t, seen)
	assert.NoError(t, cache.Mark(context.Background(), "p1"))
}
