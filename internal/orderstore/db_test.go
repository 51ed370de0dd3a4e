package orderstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Order)(nil),
		(*models.OrderMeta)(nil),
		(*models.OrderNote)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	return &DB{Bun: bunDB}
}

func seedOrder(t *testing.T, d *DB, status models.PaymentStatus) *models.Order {
	t.Helper()

	order := &models.Order{
		OrderID:       42,
		FormID:        3,
		Email:         "payer@example.com",
		Amount:        50.00,
		Currency:      "USD",
		PaymentStatus: status,
		CreatedAt:     time.Now().UTC().Round(time.Second),
	}
	require.NoError(t, d.CreateOrder(context.Background(), order))
	return order
}

func TestGetOrderNotFound(t *testing.T) {
	d := setupTestDB(t)

	_, err := d.GetOrder(context.Background(), 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCompletePaymentSetsAllFieldsAtomically(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d, models.StatusUnpaid)
	ctx := context.Background()

	paidAt := time.Now().UTC().Round(time.Second)
	require.NoError(t, d.CompletePayment(ctx, 42, "txn_100", 50.00, paidAt))

	order, err := d.GetOrder(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.PaymentStatus)
	assert.Equal(t, "txn_100", order.TransactionID)
	assert.Equal(t, 50.00, order.Amount)
	assert.True(t, order.IsFulfilled)
	assert.True(t, paidAt.Equal(order.PaymentDate), "payment date should round-trip")
}

func TestGuardedWritesRejectTerminalOrders(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d, models.StatusUnpaid)
	ctx := context.Background()

	require.NoError(t, d.CompletePayment(ctx, 42, "txn_100", 50.00, time.Now().UTC()))

	assert.ErrorIs(t, d.CompletePayment(ctx, 42, "txn_200", 99.00, time.Now().UTC()), ErrAlreadyFinal)
	assert.ErrorIs(t, d.FailPayment(ctx, 42, "txn_200"), ErrAlreadyFinal)
	assert.ErrorIs(t, d.SetPendingPayment(ctx, 42, "txn_200"), ErrAlreadyFinal)
	assert.ErrorIs(t, d.UpdateStatus(ctx, 42, models.StatusProcessing), ErrAlreadyFinal)

	// The losing writes must not have touched anything.
	order, err := d.GetOrder(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.PaymentStatus)
	assert.Equal(t, "txn_100", order.TransactionID)
	assert.Equal(t, 50.00, order.Amount)
	assert.True(t, order.IsFulfilled)
}

func TestGuardedWritesDistinguishMissingOrders(t *testing.T) {
	d := setupTestDB(t)

	err := d.CompletePayment(context.Background(), 999, "txn", 1.00, time.Now().UTC())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFailPaymentKeepsExistingTransactionWhenAbsent(t *testing.T) {
	d := setupTestDB(t)
	order := seedOrder(t, d, models.StatusProcessing)
	ctx := context.Background()

	order.TransactionID = "txn_original"
	_, err := d.Bun.NewUpdate().Model(order).Column("transaction_id").WherePK().Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, d.FailPayment(ctx, 42, ""))

	got, err := d.GetOrder(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.PaymentStatus)
	assert.Equal(t, "txn_original", got.TransactionID)
}

func TestSetMetaUpsert(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d, models.StatusUnpaid)
	ctx := context.Background()

	require.NoError(t, d.SetMeta(ctx, 42, "submission_data", "v1"))
	require.NoError(t, d.SetMeta(ctx, 42, "submission_data", "v2"))

	value, err := d.GetMeta(ctx, 42, "submission_data")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)

	missing, err := d.GetMeta(ctx, 42, "absent")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestAppendAndListNotes(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d, models.StatusUnpaid)
	ctx := context.Background()

	require.NoError(t, d.AppendNote(ctx, 42, "first note"))
	require.NoError(t, d.AppendNote(ctx, 42, "second note"))

	notes, err := d.ListNotes(ctx, 42)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "first note", notes[0].Text)
	assert.Equal(t, "second note", notes[1].Text)
}

func TestFindUnpaidByEmail(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	orders := []*models.Order{
		{OrderID: 1, FormID: 3, Email: "payer@example.com", Amount: 10, Currency: "USD", PaymentStatus: models.StatusUnpaid},
		{OrderID: 2, FormID: 3, Email: "payer@example.com", Amount: 20, Currency: "USD", PaymentStatus: models.StatusPaid},
		{OrderID: 3, FormID: 3, Email: "payer@example.com", Amount: 30, Currency: "USD", PaymentStatus: models.StatusPending},
		{OrderID: 4, FormID: 3, Email: "other@example.com", Amount: 40, Currency: "USD", PaymentStatus: models.StatusUnpaid},
	}
	for _, o := range orders {
		require.NoError(t, d.CreateOrder(ctx, o))
	}

	unpaid, err := d.FindUnpaidByEmail(ctx, "payer@example.com")
	require.NoError(t, err)
	require.Len(t, unpaid, 2)
	for _, o := range unpaid {
		assert.NotEqual(t, models.StatusPaid, o.PaymentStatus)
		assert.Equal(t, "payer@example.com", o.Email)
	}
}

func TestSaveCardDigits(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d, models.StatusUnpaid)
	ctx := context.Background()

	require.NoError(t, d.SaveCardDigits(ctx, 42, "4242"))

	order, err := d.GetOrder(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "4242", order.CardLast4)
}
