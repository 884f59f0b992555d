package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// Client is the fulfillment core's view of the payment processor.
// Every call is an outbound network request carrying an idempotency key
// derived from the input identifier, so network-layer retries can never
// double-capture or double-cancel.
type Client interface {
	CreateConnectionToken(ctx context.Context) (string, error)
	ListReaders(ctx context.Context) ([]models.Reader, error)
	CaptureIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	CancelReaderAction(ctx context.Context, readerID string) (*models.PaymentIntent, error)
}

// StripeGateway implements Client against Stripe Terminal.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("GATEWAY", "Stripe secret key is not configured")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("GATEWAY", "Stripe client initialized")
	return &StripeGateway{client: sc, log: log}, nil
}

// CreateConnectionToken requests a short-lived credential for terminal
// pairing. Not retried here; the token is single-use and the caller must
// re-request on failure.
func (g *StripeGateway) CreateConnectionToken(ctx context.Context) (string, error) {
	params := &stripe.TerminalConnectionTokenParams{}
	params.Context = ctx

	token, err := g.client.TerminalConnectionTokens.New(params)
	if err != nil {
		g.log.Error("GATEWAY", fmt.Sprintf("Connection token request failed: %v", err))
		return "", g.mapError(err)
	}

	return token.Secret, nil
}

// ListReaders pages through the registered terminal readers. The Stripe
// iterator fetches pages lazily; calling again restarts the sequence.
func (g *StripeGateway) ListReaders(ctx context.Context) ([]models.Reader, error) {
	params := &stripe.TerminalReaderListParams{}
	params.Context = ctx

	var readers []models.Reader
	iter := g.client.TerminalReaders.List(params)
	for iter.Next() {
		readers = append(readers, toReader(iter.TerminalReader()))
	}
	if err := iter.Err(); err != nil {
		g.log.Error("GATEWAY", fmt.Sprintf("Reader listing failed: %v", err))
		return nil, g.mapError(err)
	}

	return readers, nil
}

// CaptureIntent finalizes a held authorization. Idempotent: capturing an
// already-captured intent returns the existing captured state instead of
// erroring, since network retries are expected.
func (g *StripeGateway) CaptureIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	g.log.LogGateway("CAPTURE", intentID, "capturing payment intent")

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(CaptureIdempotencyKey(intentID))

	pi, err := g.client.PaymentIntents.Capture(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			// The intent was not in requires_capture. Fetch it to decide
			// whether this is a redundant capture or a dead intent.
			getParams := &stripe.PaymentIntentParams{}
			getParams.Context = ctx
			current, getErr := g.client.PaymentIntents.Get(intentID, getParams)
			if getErr == nil && current.Status == stripe.PaymentIntentStatusSucceeded {
				g.log.LogGateway("CAPTURE", intentID, "intent already captured, returning existing state")
				return toPaymentIntent(current), nil
			}
			return nil, fmt.Errorf("%w: intent %s", ErrNotCapturable, intentID)
		}
		g.log.Error("GATEWAY", fmt.Sprintf("Capture of intent %s failed: %v", intentID, err))
		return nil, g.mapError(err)
	}

	return toPaymentIntent(pi), nil
}

// CancelReaderAction cancels the in-flight action on a reader. A reader
// with nothing in flight yields ErrNoActiveAction, which callers may
// treat as success.
func (g *StripeGateway) CancelReaderAction(ctx context.Context, readerID string) (*models.PaymentIntent, error) {
	g.log.LogGateway("CANCEL", readerID, "canceling reader action")

	params := &stripe.TerminalReaderCancelActionParams{}
	params.Context = ctx
	params.SetIdempotencyKey(CancelIdempotencyKey(readerID))

	reader, err := g.client.TerminalReaders.CancelAction(readerID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && isNoActiveAction(stripeErr) {
			return nil, fmt.Errorf("%w: reader %s", ErrNoActiveAction, readerID)
		}
		g.log.Error("GATEWAY", fmt.Sprintf("Cancel action on reader %s failed: %v", readerID, err))
		return nil, g.mapError(err)
	}

	if reader.Action != nil && reader.Action.ProcessPaymentIntent != nil && reader.Action.ProcessPaymentIntent.PaymentIntent != nil {
		intent := toPaymentIntent(reader.Action.ProcessPaymentIntent.PaymentIntent)
		intent.ReaderID = readerID
		return intent, nil
	}
	return nil, nil
}

// isNoActiveAction reports whether a cancel failure means the reader
// simply had nothing in flight. A missing reader or any other invalid
// request propagates untouched.
func isNoActiveAction(err *stripe.Error) bool {
	if err.Type != stripe.ErrorTypeInvalidRequest || err.HTTPStatusCode >= 500 {
		return false
	}
	if err.Code == stripe.ErrorCodeResourceMissing {
		return false
	}
	return strings.Contains(strings.ToLower(err.Msg), "action")
}

// mapError classifies transport and server-side failures as transient.
func (g *StripeGateway) mapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return err
	}
	// Non-Stripe errors are connection failures.
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

// CaptureIdempotencyKey derives the idempotency key for a capture from
// the intent identifier.
func CaptureIdempotencyKey(intentID string) string {
	return "capture:" + intentID
}

// CancelIdempotencyKey derives the idempotency key for a reader-action
// cancel from the reader identifier.
func CancelIdempotencyKey(readerID string) string {
	return "cancel-action:" + readerID
}

func toPaymentIntent(pi *stripe.PaymentIntent) *models.PaymentIntent {
	return &models.PaymentIntent{
		ID:       pi.ID,
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Status:   normalizeIntentStatus(pi.Status),
	}
}

// normalizeIntentStatus collapses Stripe's status set into the four the
// fulfillment core reasons about.
func normalizeIntentStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return models.IntentRequiresCapture
	case stripe.PaymentIntentStatusSucceeded:
		return models.IntentCaptured
	case stripe.PaymentIntentStatusCanceled:
		return models.IntentCanceled
	default:
		return models.IntentFailed
	}
}

func toReader(r *stripe.TerminalReader) models.Reader {
	reader := models.Reader{
		ID:         r.ID,
		Label:      r.Label,
		DeviceType: string(r.DeviceType),
		Status:     string(r.Status),
	}
	if r.Location != nil {
		reader.Location = r.Location.ID
	}
	if r.Action != nil {
		reader.ActionType = string(r.Action.Type)
	}
	return reader
}
