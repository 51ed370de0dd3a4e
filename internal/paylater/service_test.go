package paylater

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
)

type staticURLs struct{}

func (staticURLs) ReturnURL(formID, orderID int64) string {
	return fmt.Sprintf("http://localhost:8080/return?form=%d&order=%d", formID, orderID)
}

func setupTestService(t *testing.T) (*Service, orderstore.Store) {
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

	store := &orderstore.DB{Bun: bunDB}
	return NewService(store, staticURLs{}, logger.NewLogger()), store
}

func TestLinksForEmail(t *testing.T) {
	service, store := setupTestService(t)
	ctx := context.Background()

	orders := []*models.Order{
		{OrderID: 1, FormID: 3, Email: "payer@example.com", Amount: 10, Currency: "USD", PaymentStatus: models.StatusUnpaid},
		{OrderID: 2, FormID: 3, Email: "payer@example.com", Amount: 20, Currency: "USD", PaymentStatus: models.StatusPaid},
		{OrderID: 3, FormID: 5, Email: "other@example.com", Amount: 30, Currency: "USD", PaymentStatus: models.StatusUnpaid},
	}
	for _, o := range orders {
		require.NoError(t, store.CreateOrder(ctx, o))
	}

	links, err := service.LinksForEmail(ctx, "payer@example.com")
	require.NoError(t, err)
	require.Len(t, links, 1)

	link := links[0]
	assert.Equal(t, int64(1), link.OrderID)
	assert.Equal(t, "http://localhost:8080/return?form=3&order=1", link.PaymentURL)

	// The QR image must decode to a PNG of the link.
	png, err := base64.StdEncoding.DecodeString(link.QRCodePNG)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestLinksForEmailEmpty(t *testing.T) {
	service, _ := setupTestService(t)

	links, err := service.LinksForEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, links)
}
