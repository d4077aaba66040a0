package storage

import (
	"context"
	"errors"

	"conference-payments/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Store is the persistence surface for catalog, orders, payments, and
// registrations. Reads outside a transaction see committed state; every
// reconciliation mutation happens through RunInTx.
type Store interface {
	// Catalog.
	GetTicketTypeByCode(ctx context.Context, code, currency string) (*models.TicketType, error)
	GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListTicketSessionLinks(ctx context.Context, ticketTypeID string) ([]string, error)

	// Orders and payments.
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	SavePayment(ctx context.Context, payment *models.Payment) error

	// Registrations.
	GetConfirmedRegistrationByUser(ctx context.Context, userID string) (*models.Registration, error)
	GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error)
	UserOwnsTicketType(ctx context.Context, userID, ticketTypeID string) (bool, error)

	// RunInTx runs fn inside one database transaction; fn's writes commit
	// together or not at all.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// Tx exposes the row operations composed inside a transaction. The reconciler
// relies on this boundary: the registration-exists check and the subsequent
// creates and increments must be atomic against a racing webhook or poll.
type Tx interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error

	UpdatePayment(ctx context.Context, payment *models.Payment) error

	GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error)
	GetConfirmedRegistrationByUser(ctx context.Context, userID string) (*models.Registration, error)
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	CreateRegistrationSession(ctx context.Context, link *models.RegistrationSession) error

	ListTicketSessionLinks(ctx context.Context, ticketTypeID string) ([]string, error)
	SaveTicketSessionLink(ctx context.Context, ticketTypeID, sessionID string) error
	FindMainSessionID(ctx context.Context) (string, error)

	// IncrementSold applies sold = sold + n in place so concurrent orders
	// against the same ticket type cannot lose updates.
	IncrementSold(ctx context.Context, ticketTypeID string, n int) error
	IncrementSessionLinked(ctx context.Context, sessionID string, n int) error
}
