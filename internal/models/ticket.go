package models

import (
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TicketCategory string

const (
	CategoryPrimary  TicketCategory = "primary"
	CategoryWorkshop TicketCategory = "workshop"
	CategoryGala     TicketCategory = "gala"
	CategoryAddOn    TicketCategory = "addon"
)

// IsAddOn reports whether the category layers onto a primary ticket rather
// than granting admission by itself.
func (c TicketCategory) IsAddOn() bool {
	return c != CategoryPrimary
}

// TicketType is a catalog row. Sold is only ever mutated with an atomic
// in-place increment, never read-modify-write.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	TicketTypeID string          `json:"ticketTypeID" bun:"ticket_type_id,pk"`
	Code         string          `json:"code" bun:"code"`
	Name         string          `json:"name" bun:"name"`
	Category     TicketCategory  `json:"category" bun:"category"`
	Currency     string          `json:"currency" bun:"currency"`
	NetPrice     decimal.Decimal `json:"netPrice" bun:"net_price"`
	Quota        int             `json:"quota" bun:"quota"`
	Sold         int             `json:"sold" bun:"sold"`
	Active       bool            `json:"active" bun:"active"`
}

// SoldOut reports whether another unit would exceed the quota.
func (t *TicketType) SoldOut() bool {
	return t.Sold >= t.Quota
}

// Session is a schedulable slot (main conference day, a workshop run, the
// gala dinner) that a registration can be linked to.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	SessionID string `json:"sessionID" bun:"session_id,pk"`
	Name      string `json:"name" bun:"name"`
	Track     string `json:"track" bun:"track"`
	Capacity  int    `json:"capacity" bun:"capacity"`
	Linked    int    `json:"linked" bun:"linked"`
	Active    bool   `json:"active" bun:"active"`
}

const TrackMain = "main"

// TicketSessionLink maps a ticket type to the sessions it grants access to.
type TicketSessionLink struct {
	bun.BaseModel `bun:"table:ticket_session_links"`

	TicketTypeID string `json:"ticketTypeID" bun:"ticket_type_id"`
	SessionID    string `json:"sessionID" bun:"session_id"`
}
