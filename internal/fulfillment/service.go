package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"ms-fulfillment/internal/gateway"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/orders/db"
)

// OrderStore is the persistence boundary the workflow drives. Mutations
// are conditional single-row updates; the store, not the workflow, is
// the source of truth for an order's state.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	FindOutstanding(ctx context.Context, storeID string) ([]models.Order, error)
	MarkPaid(ctx context.Context, orderID, intentID string) error
	MarkDispatched(ctx context.Context, orderID string) error
	MarkCanceled(ctx context.Context, orderID string) error
}

// Gateway is the slice of the payment processor client the workflow
// needs.
type Gateway interface {
	CaptureIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	CancelReaderAction(ctx context.Context, readerID string) (*models.PaymentIntent, error)
}

// LockManager serializes workflow instances per order and gateway
// actions per reader. Lock leases live outside the process; no Go mutex
// is held across an external call.
type LockManager interface {
	LockOrder(ctx context.Context, orderID string) (bool, error)
	UnlockOrder(ctx context.Context, orderID string) error
	LockReader(ctx context.Context, readerID string) (bool, error)
	UnlockReader(ctx context.Context, readerID string) error
}

// EventPublisher streams lifecycle events. Failures are logged, never
// propagated.
type EventPublisher interface {
	PublishOrderCaptured(order models.Order) error
	PublishOrderDispatched(order models.Order) error
	PublishOrderCanceled(order models.Order) error
}

// MarketingNotifier registers a customer on the marketing side. Best
// effort: implementations swallow their own errors.
type MarketingNotifier interface {
	SyncCustomer(ctx context.Context, name, email string)
}

// LabelGenerator renders the QR dispatch label for a parcel.
type LabelGenerator interface {
	Generate(order models.Order) ([]byte, error)
}

// Service drives orders through the capture workflow:
//
//	PendingPayment -> Captured -> Dispatched
//	            \--> Canceled
//
// Dispatched and canceled are terminal.
type Service struct {
	Store     OrderStore
	Gateway   Gateway
	Locks     LockManager
	Events    EventPublisher
	Marketing MarketingNotifier
	Labels    LabelGenerator

	logger *logger.Logger
}

func NewService(store OrderStore, gw Gateway, locks LockManager, events EventPublisher, marketing MarketingNotifier, labels LabelGenerator, log *logger.Logger) *Service {
	return &Service{
		Store:     store,
		Gateway:   gw,
		Locks:     locks,
		Events:    events,
		Marketing: marketing,
		Labels:    labels,
		logger:    log,
	}
}

// StartCapture moves an order from PendingPayment to Captured: capture
// the intent at the processor, then record the payment in the store.
// Exactly one of any number of concurrent calls for the same order wins;
// the rest observe ErrReaderBusy or, once the winner finishes, a no-op
// success.
func (s *Service) StartCapture(ctx context.Context, orderID, intentID string) error {
	ok, err := s.Locks.LockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.LogOrder("CAPTURE", orderID, "capture already in progress")
		return fmt.Errorf("%w: order %s", gateway.ErrReaderBusy, orderID)
	}
	defer func() {
		if err := s.Locks.UnlockOrder(context.Background(), orderID); err != nil {
			s.logger.Error("LOCK", fmt.Sprintf("Failed to release order lock %s: %v", orderID, err))
		}
	}()

	order, err := s.Store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Paid && order.PaymentIntentID == intentID {
		s.logger.LogOrder("CAPTURE", orderID, "already captured, no-op")
		return nil
	}
	if order.Status != models.StatusPendingPayment {
		return fmt.Errorf("%w: order %s has status %s", db.ErrInvalidState, orderID, order.Status)
	}

	intent, err := s.Gateway.CaptureIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.Status != models.IntentCaptured {
		return fmt.Errorf("%w: intent %s ended in status %s", gateway.ErrNotCapturable, intentID, intent.Status)
	}

	// The processor now holds the charge; the store is an eventually
	// consistent record of it. A transient store failure gets one
	// re-issue of MarkPaid alone. The capture is never re-sent.
	if err := s.Store.MarkPaid(ctx, orderID, intentID); err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidState) {
			return err
		}
		s.logger.Warn("ORDER", fmt.Sprintf("MarkPaid failed for order %s, retrying once: %v", orderID, err))
		if err := s.Store.MarkPaid(ctx, orderID, intentID); err != nil {
			return fmt.Errorf("intent %s captured but order %s not recorded as paid: %w", intentID, orderID, err)
		}
	}

	order.Paid = true
	order.Status = models.StatusCaptured
	order.PaymentIntentID = intentID

	if err := s.Events.PublishOrderCaptured(*order); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish capture event for order %s: %v", orderID, err))
	}

	// Marketing sync is fire-and-forget; it must never block or fail
	// fulfillment.
	if order.CustomerEmail != "" {
		go s.Marketing.SyncCustomer(context.Background(), order.CustomerName, order.CustomerEmail)
	}

	s.logger.LogOrder("CAPTURE", orderID, fmt.Sprintf("captured intent %s", intentID))
	return nil
}

// Cancel aborts an in-flight terminal action and moves the order onto
// the canceled branch. Permitted only while the order is still pending;
// a captured payment is not rolled back here.
func (s *Service) Cancel(ctx context.Context, orderID, readerID string) error {
	ok, err := s.Locks.LockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order %s", gateway.ErrReaderBusy, orderID)
	}
	defer func() {
		if err := s.Locks.UnlockOrder(context.Background(), orderID); err != nil {
			s.logger.Error("LOCK", fmt.Sprintf("Failed to release order lock %s: %v", orderID, err))
		}
	}()

	order, err := s.Store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == models.StatusCanceled {
		s.logger.LogOrder("CANCEL", orderID, "already canceled, no-op")
		return nil
	}
	if order.Status != models.StatusPendingPayment {
		return fmt.Errorf("%w: cannot cancel order %s with status %s", db.ErrInvalidState, orderID, order.Status)
	}

	ok, err = s.Locks.LockReader(ctx, readerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: reader %s", gateway.ErrReaderBusy, readerID)
	}
	defer func() {
		if err := s.Locks.UnlockReader(context.Background(), readerID); err != nil {
			s.logger.Error("LOCK", fmt.Sprintf("Failed to release reader lock %s: %v", readerID, err))
		}
	}()

	if _, err := s.Gateway.CancelReaderAction(ctx, readerID); err != nil {
		if !errors.Is(err, gateway.ErrNoActiveAction) {
			return err
		}
		// Nothing was in flight on the reader; the cancel still
		// completes locally.
		s.logger.LogOrder("CANCEL", orderID, fmt.Sprintf("reader %s had no active action", readerID))
	}

	if err := s.Store.MarkCanceled(ctx, orderID); err != nil {
		return err
	}

	order.Status = models.StatusCanceled
	if err := s.Events.PublishOrderCanceled(*order); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish cancel event for order %s: %v", orderID, err))
	}

	s.logger.LogOrder("CANCEL", orderID, "order canceled")
	return nil
}

// Dispatch completes fulfillment of a captured order and renders its QR
// dispatch label. The store enforces the paid-before-dispatch invariant
// through its conditional update.
func (s *Service) Dispatch(ctx context.Context, orderID string) ([]byte, error) {
	if err := s.Store.MarkDispatched(ctx, orderID); err != nil {
		return nil, err
	}

	order, err := s.Store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	label, err := s.Labels.Generate(*order)
	if err != nil {
		// The order is dispatched; a label render failure is not a
		// state-machine failure.
		s.logger.Error("DISPATCH", fmt.Sprintf("Failed to generate label for order %s: %v", orderID, err))
		label = nil
	}

	if err := s.Events.PublishOrderDispatched(*order); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish dispatch event for order %s: %v", orderID, err))
	}

	s.logger.LogOrder("DISPATCH", orderID, "order dispatched")
	return label, nil
}

// ListOutstanding returns the store's paid-but-not-dispatched orders.
func (s *Service) ListOutstanding(ctx context.Context, storeID string) ([]models.Order, error) {
	return s.Store.FindOutstanding(ctx, storeID)
}
