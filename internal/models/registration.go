package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "confirmed"
)

// Registration is the durable proof of attendance, created the first time an
// order containing a primary ticket reconciles. At most one confirmed
// registration exists per user; add-on-only orders attach to it.
type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	RegistrationID string             `json:"registrationID" bun:"registration_id,pk"`
	UserID         string             `json:"userID" bun:"user_id"`
	OrderID        string             `json:"orderID" bun:"order_id"`
	TicketTypeID   string             `json:"ticketTypeID" bun:"ticket_type_id"`
	Status         RegistrationStatus `json:"status" bun:"status"`
	CreatedAt      time.Time          `json:"createdAt" bun:"created_at"`
}

// RegistrationSession links a registration to a session it grants access to.
type RegistrationSession struct {
	bun.BaseModel `bun:"table:registration_sessions"`

	RegistrationID string `json:"registrationID" bun:"registration_id"`
	SessionID      string `json:"sessionID" bun:"session_id"`
	OrderItemID    string `json:"orderItemID" bun:"order_item_id"`
}
