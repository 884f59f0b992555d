package gateway

import "errors"

var (
	// ErrUpstreamUnavailable means the payment processor could not be
	// reached or answered with a server error. Transient; callers may
	// retry with backoff.
	ErrUpstreamUnavailable = errors.New("payment processor unavailable")

	// ErrNotCapturable means the intent is canceled or failed and can
	// never be captured. Permanent.
	ErrNotCapturable = errors.New("payment intent is not capturable")

	// ErrNoActiveAction means the reader had nothing in flight to cancel.
	// Callers may treat this as a no-op success.
	ErrNoActiveAction = errors.New("reader has no active action")

	// ErrReaderBusy means another action is in flight for the same reader
	// or order. Transient; retry after backoff.
	ErrReaderBusy = errors.New("reader busy")
)
