package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-fulfillment/internal/models"

	"github.com/uptrace/bun"
)

var (
	// ErrNotFound means the order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrInvalidState means the requested transition is not permitted
	// from the order's current state. Permanent; not retried.
	ErrInvalidState = errors.New("order is in an invalid state for this transition")
)

// DB is the persistence boundary for orders and their line items. All
// mutations are single-row conditional updates, so concurrent workflow
// instances are serialized by the database even if a lock lease is lost.
type DB struct {
	Bun *bun.DB
}

// GetOrderByID fetches one order with its line items attached.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Relation("Items").
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOutstanding returns the store's paid-but-not-dispatched orders,
// line items eagerly attached, ordered by creation time so one query
// always yields a stable sequence.
func (d *DB) FindOutstanding(ctx context.Context, storeID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Items").
		Where("store_id = ?", storeID).
		Where("paid = ?", true).
		Where("dispatched = ?", false).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// MarkPaid transitions an order out of pending_payment once its intent
// has been captured. Idempotent: marking an already-paid order with the
// same intent is a no-op success. A different intent on a paid order is
// rejected.
func (d *DB) MarkPaid(ctx context.Context, orderID, intentID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("paid = ?", true).
		Set("status = ?", models.StatusCaptured).
		Set("payment_intent_id = ?", intentID).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Where("status = ?", models.StatusPendingPayment).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	order, err := d.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Paid && order.PaymentIntentID == intentID {
		return nil
	}
	return fmt.Errorf("%w: order %s has status %s", ErrInvalidState, orderID, order.Status)
}

// MarkDispatched completes fulfillment. An order can never be dispatched
// while unpaid, and dispatched/canceled are terminal.
func (d *DB) MarkDispatched(ctx context.Context, orderID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("dispatched = ?", true).
		Set("status = ?", models.StatusDispatched).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Where("paid = ?", true).
		Where("dispatched = ?", false).
		Where("status = ?", models.StatusCaptured).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	order, err := d.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: order %s has status %s (paid=%v)", ErrInvalidState, orderID, order.Status, order.Paid)
}

// MarkCanceled moves a pending order onto the canceled side branch.
// Canceling an already-canceled order is a no-op success.
func (d *DB) MarkCanceled(ctx context.Context, orderID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.StatusCanceled).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Where("status = ?", models.StatusPendingPayment).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	order, err := d.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == models.StatusCanceled {
		return nil
	}
	return fmt.Errorf("%w: order %s has status %s", ErrInvalidState, orderID, order.Status)
}

// CreateOrder inserts a new order with its line items. Order placement
// happens at checkout, outside the fulfillment core; this exists for
// seeding and tests.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.Status == "" {
		order.Status = models.StatusPendingPayment
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	if err != nil {
		return err
	}
	if len(order.Items) > 0 {
		for _, item := range order.Items {
			item.OrderID = order.OrderID
		}
		_, err = d.Bun.NewInsert().Model(&order.Items).Exec(ctx)
	}
	return err
}
