package services

import "errors"

// Domain-rule violations. Handlers translate these into 400 responses with a
// machine-readable code; everything else surfaces as a generic backend error.
var (
	ErrEmptyCart        = errors.New("cart contains no items")
	ErrDuplicatePrimary = errors.New("user already holds a confirmed primary ticket")
	ErrNoPrimaryTicket  = errors.New("add-on purchase requires a confirmed primary ticket")
	ErrDuplicateAddOn   = errors.New("add-on already purchased")
	ErrSoldOut          = errors.New("ticket type is sold out")
	ErrSessionRequired  = errors.New("workshop add-on requires a session choice")
	ErrSessionNotLinked = errors.New("session is not available for this ticket")
	ErrSessionFull      = errors.New("session has no remaining capacity")
	ErrUnknownFeeMethod = errors.New("unknown fee method")

	ErrTicketNotFound  = errors.New("ticket type not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrNotOrderOwner   = errors.New("order belongs to another user")
	ErrOrderNotPending = errors.New("order is not in pending state")
	ErrOrderNotPaid    = errors.New("order is not paid")
)
