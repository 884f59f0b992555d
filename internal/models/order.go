package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Order lifecycle statuses. Dispatched and canceled are terminal.
const (
	StatusPendingPayment = "pending_payment"
	StatusCaptured       = "captured"
	StatusDispatched     = "dispatched"
	StatusCanceled       = "canceled"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID         string    `bun:"order_id,pk" json:"order_id"`
	StoreID         string    `bun:"store_id,notnull" json:"store_id"`
	CustomerName    string    `bun:"customer_name" json:"customer_name"`
	CustomerEmail   string    `bun:"customer_email" json:"customer_email"`
	Status          string    `bun:"status,notnull" json:"status"`
	Paid            bool      `bun:"paid,notnull" json:"paid"`
	Dispatched      bool      `bun:"dispatched,notnull" json:"dispatched"`
	PaymentIntentID string    `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	Total           float64   `bun:"total" json:"total"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`

	Items []*OrderItem `bun:"rel:has-many,join:order_id=order_id" json:"items"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID        int64   `bun:"id,pk,autoincrement" json:"id"`
	OrderID   string  `bun:"order_id,notnull" json:"order_id"`
	ProductID string  `bun:"product_id,notnull" json:"product_id"`
	Color     string  `bun:"color" json:"color"`
	Quantity  int     `bun:"quantity,notnull" json:"quantity"`
	UnitPrice float64 `bun:"unit_price" json:"unit_price"`
}

type CaptureRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type CancelRequest struct {
	ReaderID string `json:"reader_id"`
}

type DispatchResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	// Label is the base64-encoded QR dispatch label PNG.
	Label string `json:"label,omitempty"`
}
