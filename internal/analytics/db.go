package analytics

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// DB exposes the dashboard read models as named queries against the
// order tables, decoupled from the fulfillment workflow.
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// ColorSales is the top-selling-color read model.
type ColorSales struct {
	Color string `bun:"color" json:"color"`
	Units int    `bun:"units" json:"units"`
}

// TopSellingColor returns the color with the most units sold across the
// store's paid orders. Returns nil when the store has no paid sales.
func (db *DB) TopSellingColor(ctx context.Context, storeID string) (*ColorSales, error) {
	var top ColorSales
	err := db.bun.NewRaw(`
        SELECT oi.color AS color, SUM(oi.quantity) AS units
        FROM order_items oi
        JOIN orders o ON o.order_id = oi.order_id
        WHERE o.store_id = ? AND o.paid = ?
        GROUP BY oi.color
        ORDER BY units DESC
        LIMIT 1`, storeID, true).
		Scan(ctx, &top)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &top, nil
}

// RevenueByStore sums the totals of the store's paid orders.
func (db *DB) RevenueByStore(ctx context.Context, storeID string) (float64, error) {
	var revenue sql.NullFloat64
	err := db.bun.NewRaw(`
        SELECT SUM(total) FROM orders WHERE store_id = ? AND paid = ?`,
		storeID, true).
		Scan(ctx, &revenue)
	if err != nil {
		return 0, err
	}
	return revenue.Float64, nil
}

// OutstandingCount counts paid-but-not-dispatched orders for a store.
func (db *DB) OutstandingCount(ctx context.Context, storeID string) (int, error) {
	var count int
	err := db.bun.NewRaw(`
        SELECT COUNT(*) FROM orders
        WHERE store_id = ? AND paid = ? AND dispatched = ?`,
		storeID, true, false).
		Scan(ctx, &count)
	return count, err
}

// DailySalesData is one day of sales for a store.
type DailySalesData struct {
	SalesDate    time.Time `bun:"sales_date" json:"sales_date"`
	DailyRevenue float64   `bun:"daily_revenue" json:"daily_revenue"`
	DailyOrders  int       `bun:"daily_orders" json:"daily_orders"`
}

// DailySales returns per-day revenue and order counts for a store's
// paid orders, most recent first.
func (db *DB) DailySales(ctx context.Context, storeID string) ([]DailySalesData, error) {
	var daily []DailySalesData
	err := db.bun.NewRaw(`
        SELECT DATE(created_at) AS sales_date,
               SUM(total) AS daily_revenue,
               COUNT(*) AS daily_orders
        FROM orders
        WHERE store_id = ? AND paid = ?
        GROUP BY DATE(created_at)
        ORDER BY sales_date DESC`, storeID, true).
		Scan(ctx, &daily)
	if err != nil {
		return nil, err
	}
	return daily, nil
}
