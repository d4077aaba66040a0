package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusPaid      PaymentStatus = "paid"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
)

// Payment mirrors the gateway payment-intent state for one order. A payment
// reaches "paid" at most once; every reconciliation path checks this before
// mutating state.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	PaymentID  string          `json:"paymentID" bun:"payment_id,pk"`
	OrderID    string          `json:"orderID" bun:"order_id"`
	IntentID   string          `json:"intentID" bun:"intent_id"`
	Status     PaymentStatus   `json:"status" bun:"status"`
	Amount     decimal.Decimal `json:"amount" bun:"amount"`
	Currency   string          `json:"currency" bun:"currency"`
	Channel    string          `json:"channel,omitempty" bun:"channel,nullzero"`
	ReceiptURL string          `json:"receiptURL,omitempty" bun:"receipt_url,nullzero"`
	CreatedAt  time.Time       `json:"createdAt" bun:"created_at"`
	UpdatedAt  time.Time       `json:"updatedAt" bun:"updated_at"`
}

// PaymentEvent is published to the broker when a payment changes state or a
// receipt email should go out.
type PaymentEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Payment   *Payment  `json:"payment,omitempty"`
	Order     *Order    `json:"order,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventPaymentPaid      = "payment.paid"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
	EventReceiptRequested = "receipt.requested"
)
