package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-fulfillment/internal/analytics"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/orders/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupAnalytics(t *testing.T) (*analytics.DB, *db.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Order)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.OrderItem)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return analytics.NewDB(bunDB), &db.DB{Bun: bunDB}
}

func seedPaidOrder(t *testing.T, store *db.DB, orderID, storeID string, total float64, items []*models.OrderItem) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateOrder(ctx, &models.Order{
		OrderID:       orderID,
		StoreID:       storeID,
		CustomerName:  "Test Customer",
		CustomerEmail: "customer@example.com",
		Status:        models.StatusPendingPayment,
		Total:         total,
		CreatedAt:     time.Now(),
		Items:         items,
	}))
	require.NoError(t, store.MarkPaid(ctx, orderID, "pi_"+orderID))
}

func TestTopSellingColor(t *testing.T) {
	reads, store := setupAnalytics(t)
	ctx := context.Background()

	seedPaidOrder(t, store, "order-1", "store-1", 100, []*models.OrderItem{
		{ProductID: "p1", Color: "navy", Quantity: 5, UnitPrice: 10},
		{ProductID: "p2", Color: "olive", Quantity: 2, UnitPrice: 25},
	})
	seedPaidOrder(t, store, "order-2", "store-1", 60, []*models.OrderItem{
		{ProductID: "p1", Color: "navy", Quantity: 3, UnitPrice: 20},
	})

	// Unpaid orders do not count toward sales.
	require.NoError(t, store.CreateOrder(ctx, &models.Order{
		OrderID: "order-3", StoreID: "store-1", Status: models.StatusPendingPayment, Total: 999,
		Items: []*models.OrderItem{{ProductID: "p3", Color: "crimson", Quantity: 50, UnitPrice: 1}},
	}))

	top, err := reads.TopSellingColor(ctx, "store-1")
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "navy", top.Color)
	assert.Equal(t, 8, top.Units)
}

func TestTopSellingColorNoSales(t *testing.T) {
	reads, _ := setupAnalytics(t)

	top, err := reads.TopSellingColor(context.Background(), "store-empty")
	require.NoError(t, err)
	assert.Nil(t, top)
}

func TestRevenueByStore(t *testing.T) {
	reads, store := setupAnalytics(t)
	ctx := context.Background()

	seedPaidOrder(t, store, "order-1", "store-1", 100.50, nil)
	seedPaidOrder(t, store, "order-2", "store-1", 49.50, nil)
	seedPaidOrder(t, store, "order-3", "store-2", 500, nil)

	revenue, err := reads.RevenueByStore(ctx, "store-1")
	require.NoError(t, err)
	assert.InDelta(t, 150.0, revenue, 0.001)

	// A store with no paid orders reads as zero revenue.
	revenue, err = reads.RevenueByStore(ctx, "store-none")
	require.NoError(t, err)
	assert.Zero(t, revenue)
}

func TestOutstandingCount(t *testing.T) {
	reads, store := setupAnalytics(t)
	ctx := context.Background()

	seedPaidOrder(t, store, "order-1", "store-1", 10, nil)
	seedPaidOrder(t, store, "order-2", "store-1", 10, nil)
	require.NoError(t, store.MarkDispatched(ctx, "order-2"))

	count, err := reads.OutstandingCount(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "dispatched orders leave the outstanding count")
}
