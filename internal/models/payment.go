package models

// Normalized payment intent statuses as seen by the fulfillment core.
// The processor reports its own richer status set; the gateway collapses
// it into these four.
const (
	IntentRequiresCapture = "requires_capture"
	IntentCaptured        = "captured"
	IntentCanceled        = "canceled"
	IntentFailed          = "failed"
)

// PaymentIntent is the gateway-owned view of a payment authorization.
// Orders reference intents by ID; they never own them.
type PaymentIntent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	ReaderID string `json:"reader_id,omitempty"`
}

// Reader is a payment terminal session. A reader carries at most one
// in-flight action at a time.
type Reader struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	DeviceType string `json:"device_type"`
	Status     string `json:"status"`
	Location   string `json:"location,omitempty"`
	ActionType string `json:"action_type,omitempty"`
}

type ConnectionTokenResponse struct {
	Secret string `json:"secret"`
}
