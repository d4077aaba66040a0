package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the order status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       string          `json:"orderID" bun:"order_id,pk"`
	UserID        string          `json:"userID" bun:"user_id"`
	CustomerName  string          `json:"customerName" bun:"customer_name"`
	CustomerEmail string          `json:"customerEmail" bun:"customer_email"`
	Currency      string          `json:"currency" bun:"currency"`
	FeeMethod     string          `json:"feeMethod" bun:"fee_method"`
	Status        OrderStatus     `json:"status" bun:"status"`
	Subtotal      decimal.Decimal `json:"subtotal" bun:"subtotal"`
	Fee           decimal.Decimal `json:"fee" bun:"fee"`
	Total         decimal.Decimal `json:"total" bun:"total"`
	Items         []*OrderItem    `json:"items,omitempty" bun:"-"`
	CreatedAt     time.Time       `json:"createdAt" bun:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" bun:"updated_at"`
}

type ItemKind string

const (
	ItemPrimary ItemKind = "primary"
	ItemAddOn   ItemKind = "addon"
)

// OrderItem captures the unit price at order-creation time so historical
// orders stay immutable when catalog prices change later.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ItemID       string          `json:"itemID" bun:"item_id,pk"`
	OrderID      string          `json:"orderID" bun:"order_id"`
	TicketTypeID string          `json:"ticketTypeID" bun:"ticket_type_id"`
	Kind         ItemKind        `json:"kind" bun:"kind"`
	Name         string          `json:"name" bun:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice" bun:"unit_price"`
	Quantity     int             `json:"quantity" bun:"quantity"`
	SessionID    string          `json:"sessionID,omitempty" bun:"session_id,nullzero"`
}
