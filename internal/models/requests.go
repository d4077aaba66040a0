package models

import "github.com/shopspring/decimal"

// AddOnSelection is one requested add-on. Workshop-category add-ons must name
// the session the attendee wants.
type AddOnSelection struct {
	Code              string `json:"code" binding:"required"`
	WorkshopSessionID string `json:"workshopSessionId,omitempty"`
}

type CheckoutRequest struct {
	PrimaryCode string           `json:"primaryCode,omitempty"`
	AddOns      []AddOnSelection `json:"addOns,omitempty"`
	Currency    string           `json:"currency" binding:"required"`
	FeeMethod   string           `json:"feeMethod" binding:"required"`
}

type CheckoutResponse struct {
	OrderID      string          `json:"orderID"`
	ClientSecret string          `json:"clientSecret"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Fee          decimal.Decimal `json:"fee"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

type CancelIntentRequest struct {
	OrderID string `json:"orderID" binding:"required"`
}

// OrderStatusResponse is returned by the verify and status endpoints.
type OrderStatusResponse struct {
	OrderID        string        `json:"orderID"`
	OrderStatus    OrderStatus   `json:"orderStatus"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	RegistrationID string        `json:"registrationID,omitempty"`
	ReceiptURL     string        `json:"receiptURL,omitempty"`
}
