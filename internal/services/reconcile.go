package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conference-payments/internal/auth"
	"conference-payments/internal/logger"
	"conference-payments/internal/models"
	"conference-payments/internal/storage"
	"conference-payments/internal/utils"
)

// EventPublisher is the outbound side of the notification pipeline.
type EventPublisher interface {
	PublishPaymentEvent(event *models.PaymentEvent) error
}

// ReconcileService converts gateway-confirmed payments into durable
// registration state. Webhook delivery, client-side polling, and the status
// check all funnel into ReconcileIntent; whichever arrives first wins and the
// rest short-circuit.
type ReconcileService struct {
	store    storage.Store
	gateway  Gateway
	producer EventPublisher
	log      *logger.Logger
}

func NewReconcileService(store storage.Store, gateway Gateway, producer EventPublisher, log *logger.Logger) *ReconcileService {
	return &ReconcileService{
		store:    store,
		gateway:  gateway,
		producer: producer,
		log:      log,
	}
}

// ReconcileResult reports the order's state after a reconciliation attempt.
type ReconcileResult struct {
	Order             *models.Order
	Payment           *models.Payment
	RegistrationID    string
	AlreadyReconciled bool
}

// ReconcileIntent drives an order through pending→paid or pending→cancelled
// based on gateway state. hint carries state already known to the caller
// (webhook payload); when nil, the live intent is fetched from the gateway if
// the local payment is still pending. Terminal orders are never revisited.
func (s *ReconcileService) ReconcileIntent(ctx context.Context, intentID string, hint *Intent) (*ReconcileResult, error) {
	payment, err := s.store.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to look up payment: %w", err)
	}

	order, err := s.store.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	if order.Status.Terminal() {
		s.log.LogPayment("RECONCILE", intentID, fmt.Sprintf("Order %s already %s, skipping", order.OrderID, order.Status))
		return s.existingResult(ctx, order, payment)
	}

	live := hint
	if live == nil && payment.Status == models.StatusPending {
		live, err = s.gateway.GetIntent(ctx, intentID)
		if err != nil {
			// Gateway unreachable: the order stays pending for the next
			// webhook redelivery or poll.
			s.log.Error("RECONCILE", fmt.Sprintf("Gateway lookup failed for intent %s: %v", intentID, err))
			return nil, err
		}
	}
	if live == nil {
		return &ReconcileResult{Order: order, Payment: payment}, nil
	}

	switch live.Status {
	case models.StatusPaid:
		return s.reconcilePaid(ctx, order, payment, live)
	case models.StatusFailed:
		return s.reconcileTerminalFailure(ctx, order, payment, models.StatusFailed)
	case models.StatusCancelled:
		return s.reconcileTerminalFailure(ctx, order, payment, models.StatusCancelled)
	default:
		s.log.LogPayment("RECONCILE", intentID, "Intent still pending at gateway")
		return &ReconcileResult{Order: order, Payment: payment}, nil
	}
}

// reconcilePaid materializes the paid order into a confirmed registration,
// session links, and sold-count increments, exactly once, inside a single
// transaction.
func (s *ReconcileService) reconcilePaid(ctx context.Context, order *models.Order, payment *models.Payment, live *Intent) (*ReconcileResult, error) {
	// Channel and receipt URL ride on the charge; a webhook hint may lack
	// them, in which case the live intent fills the gap.
	if live.Channel == "" && live.ReceiptURL == "" {
		if enriched, err := s.gateway.GetIntent(ctx, live.ID); err == nil {
			live = enriched
		}
	}

	result := &ReconcileResult{}
	finalStatus := models.OrderPaid

	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		// Idempotency guard: duplicate webhook delivery or a poll racing the
		// webhook must not re-increment counters or re-create links.
		if reg, err := tx.GetRegistrationByOrderID(ctx, order.OrderID); err == nil {
			result.AlreadyReconciled = true
			result.RegistrationID = reg.RegistrationID
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		current, err := tx.GetOrder(ctx, order.OrderID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			result.AlreadyReconciled = true
			finalStatus = current.Status
			return nil
		}

		if err := tx.UpdateOrderStatus(ctx, order.OrderID, models.OrderPaid); err != nil {
			return err
		}

		payment.Status = models.StatusPaid
		payment.Channel = live.Channel
		payment.ReceiptURL = live.ReceiptURL
		payment.UpdatedAt = time.Now()
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		reg, err := s.resolveRegistration(ctx, tx, current)
		if err != nil {
			return err
		}
		result.RegistrationID = reg.RegistrationID

		for _, item := range current.Items {
			sessionIDs, err := s.sessionsForItem(ctx, tx, item)
			if err != nil {
				return err
			}
			for _, sessionID := range sessionIDs {
				link := &models.RegistrationSession{
					RegistrationID: reg.RegistrationID,
					SessionID:      sessionID,
					OrderItemID:    item.ItemID,
				}
				if err := tx.CreateRegistrationSession(ctx, link); err != nil {
					return err
				}
				if err := tx.IncrementSessionLinked(ctx, sessionID, item.Quantity); err != nil {
					return err
				}
			}
			if err := tx.IncrementSold(ctx, item.TicketTypeID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("RECONCILE", fmt.Sprintf("Failed to reconcile order %s: %v", order.OrderID, err))
		return nil, fmt.Errorf("failed to reconcile order: %w", err)
	}

	order.Status = finalStatus
	result.Order = order
	result.Payment = payment

	if result.AlreadyReconciled {
		return result, nil
	}

	s.log.LogPayment("RECONCILED", payment.IntentID, fmt.Sprintf("Order %s paid, registration %s", order.OrderID, result.RegistrationID))

	// Receipt email is best effort: a publish failure must never fail or
	// roll back the financial state transition.
	s.publishEvent(models.EventPaymentPaid, order, payment)
	s.publishEvent(models.EventReceiptRequested, order, payment)

	return result, nil
}

// resolveRegistration creates a new registration for orders carrying a
// primary ticket and reuses the buyer's confirmed registration for
// add-on-only orders.
func (s *ReconcileService) resolveRegistration(ctx context.Context, tx storage.Tx, order *models.Order) (*models.Registration, error) {
	var primary *models.OrderItem
	for _, item := range order.Items {
		if item.Kind == models.ItemPrimary {
			primary = item
			break
		}
	}

	if primary == nil {
		reg, err := tx.GetConfirmedRegistrationByUser(ctx, order.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// The order builder rejects add-on-only carts without a
				// registration; reaching this means the registration was
				// removed after checkout.
				return nil, fmt.Errorf("no confirmed registration for add-on order %s", order.OrderID)
			}
			return nil, err
		}
		return reg, nil
	}

	// At most one confirmed registration per user. The order builder checks
	// this at checkout, but two pending primary orders can both pass that
	// check before either is paid; whichever reconciles second attaches to
	// the registration the first one created.
	if existing, err := tx.GetConfirmedRegistrationByUser(ctx, order.UserID); err == nil {
		s.log.LogPayment("RECONCILE", order.OrderID, fmt.Sprintf(
			"User %s already holds registration %s, reusing", order.UserID, existing.RegistrationID))
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	reg := &models.Registration{
		RegistrationID: utils.GenerateRegistrationID(),
		UserID:         order.UserID,
		OrderID:        order.OrderID,
		TicketTypeID:   primary.TicketTypeID,
		Status:         models.RegistrationConfirmed,
		CreatedAt:      time.Now(),
	}
	if err := tx.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// sessionsForItem resolves the sessions a line item grants access to. An
// explicitly chosen session wins; otherwise the ticket's configured links
// apply; a primary ticket with no mapping falls back to the main session and
// the mapping is backfilled for future lookups.
func (s *ReconcileService) sessionsForItem(ctx context.Context, tx storage.Tx, item *models.OrderItem) ([]string, error) {
	if item.SessionID != "" {
		return []string{item.SessionID}, nil
	}

	links, err := tx.ListTicketSessionLinks(ctx, item.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		return links, nil
	}

	if item.Kind != models.ItemPrimary {
		return nil, nil
	}

	mainID, err := tx.FindMainSessionID(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := tx.SaveTicketSessionLink(ctx, item.TicketTypeID, mainID); err != nil {
		return nil, err
	}
	return []string{mainID}, nil
}

func (s *ReconcileService) reconcileTerminalFailure(ctx context.Context, order *models.Order, payment *models.Payment, status models.PaymentStatus) (*ReconcileResult, error) {
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetOrder(ctx, order.OrderID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return nil
		}
		if err := tx.UpdateOrderStatus(ctx, order.OrderID, models.OrderCancelled); err != nil {
			return err
		}
		payment.Status = status
		payment.UpdatedAt = time.Now()
		return tx.UpdatePayment(ctx, payment)
	})
	if err != nil {
		s.log.Error("RECONCILE", fmt.Sprintf("Failed to mark order %s %s: %v", order.OrderID, status, err))
		return nil, fmt.Errorf("failed to reconcile failed payment: %w", err)
	}

	order.Status = models.OrderCancelled
	s.log.LogPayment("RECONCILE", payment.IntentID, fmt.Sprintf("Order %s marked cancelled (%s)", order.OrderID, status))

	eventType := models.EventPaymentFailed
	if status == models.StatusCancelled {
		eventType = models.EventPaymentCancelled
	}
	s.publishEvent(eventType, order, payment)

	return &ReconcileResult{Order: order, Payment: payment}, nil
}

// existingResult assembles the response for an already-terminal order.
func (s *ReconcileService) existingResult(ctx context.Context, order *models.Order, payment *models.Payment) (*ReconcileResult, error) {
	result := &ReconcileResult{
		Order:             order,
		Payment:           payment,
		AlreadyReconciled: true,
	}
	if reg, err := s.store.GetRegistrationByOrderID(ctx, order.OrderID); err == nil {
		result.RegistrationID = reg.RegistrationID
	} else if order.Status == models.OrderPaid {
		// Add-on-only orders reuse the buyer's registration.
		if reg, err := s.store.GetConfirmedRegistrationByUser(ctx, order.UserID); err == nil {
			result.RegistrationID = reg.RegistrationID
		}
	}
	return result, nil
}

func (s *ReconcileService) publishEvent(eventType string, order *models.Order, payment *models.Payment) {
	event := &models.PaymentEvent{
		Type:      eventType,
		OrderID:   order.OrderID,
		PaymentID: payment.PaymentID,
		Payment:   payment,
		Order:     order,
		Timestamp: time.Now(),
	}
	if err := s.producer.PublishPaymentEvent(event); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for order %s: %v", eventType, order.OrderID, err))
	}
}

// VerifyIntentForUser serves the client-side polling path: it checks that the
// caller owns the order behind the intent, refreshes it against the gateway if
// stale, and reports the resulting state.
func (s *ReconcileService) VerifyIntentForUser(ctx context.Context, principal auth.Principal, intentID string) (*models.OrderStatusResponse, error) {
	payment, err := s.store.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to look up payment: %w", err)
	}

	order, err := s.store.GetOrder(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if order.UserID != principal.UserID {
		return nil, ErrNotOrderOwner
	}

	return s.StatusForOrder(ctx, order)
}

// StatusForOrder reports order + payment state for the status endpoints,
// reconciling first when the gateway already settled but the local record is
// stale.
func (s *ReconcileService) StatusForOrder(ctx context.Context, order *models.Order) (*models.OrderStatusResponse, error) {
	payment, err := s.store.GetPaymentByOrderID(ctx, order.OrderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	if order.Status == models.OrderPending && payment.Status == models.StatusPending {
		result, err := s.ReconcileIntent(ctx, payment.IntentID, nil)
		if err == nil {
			order = result.Order
			payment = result.Payment
		} else {
			// Stale is acceptable; the caller polls again.
			s.log.Warn("RECONCILE", fmt.Sprintf("Status refresh failed for order %s: %v", order.OrderID, err))
		}
	}

	resp := &models.OrderStatusResponse{
		OrderID:       order.OrderID,
		OrderStatus:   order.Status,
		PaymentStatus: payment.Status,
		ReceiptURL:    payment.ReceiptURL,
	}
	if reg, err := s.store.GetRegistrationByOrderID(ctx, order.OrderID); err == nil {
		resp.RegistrationID = reg.RegistrationID
	}
	return resp, nil
}
