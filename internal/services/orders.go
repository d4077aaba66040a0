package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"conference-payments/internal/auth"
	"conference-payments/internal/logger"
	"conference-payments/internal/models"
	"conference-payments/internal/pricing"
	"conference-payments/internal/storage"
	"conference-payments/internal/utils"
)

// OrderService resolves a cart against the catalog, enforces the purchase
// rules, and creates the pending order plus its gateway payment intent.
// No registration is created here; that is deferred to the reconciler.
type OrderService struct {
	store   storage.Store
	gateway Gateway
	methods map[string]pricing.FeeMethod
	log     *logger.Logger
}

func NewOrderService(store storage.Store, gateway Gateway, methods map[string]pricing.FeeMethod, log *logger.Logger) *OrderService {
	return &OrderService{
		store:   store,
		gateway: gateway,
		methods: methods,
		log:     log,
	}
}

// resolvedItem pairs a catalog row with the session choice made for it.
type resolvedItem struct {
	ticket    *models.TicketType
	kind      models.ItemKind
	sessionID string
}

// Checkout validates the requested cart and, if every rule passes, writes the
// Order, its OrderItems at captured prices, and a pending Payment, and
// requests a payment intent from the gateway.
func (s *OrderService) Checkout(ctx context.Context, principal auth.Principal, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	s.log.LogOrder("CHECKOUT", principal.UserID, fmt.Sprintf("Checkout requested: primary=%q addons=%d currency=%s",
		req.PrimaryCode, len(req.AddOns), req.Currency))

	method, ok := s.methods[req.FeeMethod]
	if !ok {
		return nil, ErrUnknownFeeMethod
	}

	if req.PrimaryCode == "" && len(req.AddOns) == 0 {
		return nil, ErrEmptyCart
	}

	hasPrimary := true
	if _, err := s.store.GetConfirmedRegistrationByUser(ctx, principal.UserID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up registration: %w", err)
		}
		hasPrimary = false
	}

	// One primary ticket per user per event; add-ons need one to exist.
	if req.PrimaryCode != "" && hasPrimary {
		return nil, ErrDuplicatePrimary
	}
	if req.PrimaryCode == "" && !hasPrimary {
		return nil, ErrNoPrimaryTicket
	}

	items, err := s.resolveCart(ctx, principal, req)
	if err != nil {
		return nil, err
	}

	net := decimal.Zero
	for _, it := range items {
		net = net.Add(it.ticket.NetPrice)
	}
	quote := pricing.QuoteFor(net, method)

	now := time.Now()
	order := &models.Order{
		OrderID:       utils.GenerateOrderID(),
		UserID:        principal.UserID,
		CustomerName:  principal.Name,
		CustomerEmail: principal.Email,
		Currency:      req.Currency,
		FeeMethod:     method.Code,
		Status:        models.OrderPending,
		Subtotal:      quote.Net,
		Fee:           quote.Fee,
		Total:         quote.Gross,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	lineItems := make([]string, 0, len(items))
	for _, it := range items {
		item := &models.OrderItem{
			ItemID:       utils.GenerateUUID(),
			OrderID:      order.OrderID,
			TicketTypeID: it.ticket.TicketTypeID,
			Kind:         it.kind,
			Name:         it.ticket.Name,
			UnitPrice:    it.ticket.NetPrice,
			Quantity:     1,
			SessionID:    it.sessionID,
		}
		order.Items = append(order.Items, item)
		lineItems = append(lineItems, fmt.Sprintf("%s x1 @ %s", it.ticket.Code, it.ticket.NetPrice.StringFixed(2)))
	}

	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := tx.CreateOrderItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("ORDER", fmt.Sprintf("Failed to persist order for user %s: %v", principal.UserID, err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		OrderID:     order.OrderID,
		Amount:      quote.Gross,
		Net:         quote.Net,
		Fee:         quote.Fee,
		Currency:    req.Currency,
		MethodTypes: method.StripeTypes,
		Description: fmt.Sprintf("Conference order %s", order.OrderID),
		LineItems:   lineItems,
	})
	if err != nil {
		// The order is unusable without an intent. Mark it cancelled so it
		// never blocks the user's next attempt.
		cancelErr := s.store.RunInTx(ctx, func(tx storage.Tx) error {
			return tx.UpdateOrderStatus(ctx, order.OrderID, models.OrderCancelled)
		})
		if cancelErr != nil {
			s.log.Error("ORDER", fmt.Sprintf("Failed to cancel order %s after gateway error: %v", order.OrderID, cancelErr))
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	payment := &models.Payment{
		PaymentID: utils.GeneratePaymentID(),
		OrderID:   order.OrderID,
		IntentID:  intent.ID,
		Status:    models.StatusPending,
		Amount:    quote.Gross,
		Currency:  req.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SavePayment(ctx, payment); err != nil {
		s.log.Error("ORDER", fmt.Sprintf("Failed to save payment for order %s: %v", order.OrderID, err))
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	s.log.LogOrder("CREATED", order.OrderID, fmt.Sprintf("Order created: %d items, total %s %s",
		len(order.Items), quote.Gross.StringFixed(2), req.Currency))

	return &models.CheckoutResponse{
		OrderID:      order.OrderID,
		ClientSecret: intent.ClientSecret,
		Subtotal:     quote.Net,
		Fee:          quote.Fee,
		Total:        quote.Gross,
		Currency:     req.Currency,
	}, nil
}

// resolveCart resolves every code to a catalog row and applies the purchase
// rules in order: duplicate add-ons, then primary inventory, then session
// choices. All of it runs before any row is written.
func (s *OrderService) resolveCart(ctx context.Context, principal auth.Principal, req *models.CheckoutRequest) ([]resolvedItem, error) {
	var items []resolvedItem
	var primary *models.TicketType

	if req.PrimaryCode != "" {
		tt, err := s.store.GetTicketTypeByCode(ctx, req.PrimaryCode, req.Currency)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrTicketNotFound
			}
			return nil, fmt.Errorf("failed to resolve primary ticket: %w", err)
		}
		if tt.Category != models.CategoryPrimary {
			return nil, ErrTicketNotFound
		}
		primary = tt
		items = append(items, resolvedItem{ticket: tt, kind: models.ItemPrimary})
	}

	seen := make(map[string]bool)
	for _, sel := range req.AddOns {
		if seen[sel.Code] {
			return nil, ErrDuplicateAddOn
		}
		seen[sel.Code] = true

		tt, err := s.store.GetTicketTypeByCode(ctx, sel.Code, req.Currency)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrTicketNotFound
			}
			return nil, fmt.Errorf("failed to resolve add-on: %w", err)
		}
		if !tt.Category.IsAddOn() {
			return nil, ErrTicketNotFound
		}

		owned, err := s.store.UserOwnsTicketType(ctx, principal.UserID, tt.TicketTypeID)
		if err != nil {
			return nil, fmt.Errorf("failed to check add-on ownership: %w", err)
		}
		if owned {
			return nil, ErrDuplicateAddOn
		}

		items = append(items, resolvedItem{ticket: tt, kind: models.ItemAddOn})
	}

	if primary != nil && primary.SoldOut() {
		return nil, ErrSoldOut
	}

	for i := range items {
		it := &items[i]
		if it.kind != models.ItemAddOn || it.ticket.Category != models.CategoryWorkshop {
			continue
		}
		sessionID := workshopSessionFor(req.AddOns, it.ticket.Code)
		if err := s.validateWorkshopSession(ctx, it.ticket, sessionID); err != nil {
			return nil, err
		}
		it.sessionID = sessionID
	}

	return items, nil
}

func workshopSessionFor(addOns []models.AddOnSelection, code string) string {
	for _, sel := range addOns {
		if sel.Code == code {
			return sel.WorkshopSessionID
		}
	}
	return ""
}

// validateWorkshopSession checks that the chosen session is linked to the
// ticket, active, and has remaining capacity, before any order row exists.
func (s *OrderService) validateWorkshopSession(ctx context.Context, tt *models.TicketType, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	links, err := s.store.ListTicketSessionLinks(ctx, tt.TicketTypeID)
	if err != nil {
		return fmt.Errorf("failed to list session links: %w", err)
	}
	linked := false
	for _, id := range links {
		if id == sessionID {
			linked = true
			break
		}
	}
	if !linked {
		return ErrSessionNotLinked
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSessionNotLinked
		}
		return fmt.Errorf("failed to get session: %w", err)
	}
	if !sess.Active {
		return ErrSessionNotLinked
	}
	if sess.Linked >= sess.Capacity {
		return ErrSessionFull
	}
	return nil
}

// GetOrderForUser returns the order after verifying ownership.
func (s *OrderService) GetOrderForUser(ctx context.Context, principal auth.Principal, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order.UserID != principal.UserID {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

// CancelOrder cancels a pending order's gateway intent and marks the order
// and payment cancelled. Terminal orders are rejected.
func (s *OrderService) CancelOrder(ctx context.Context, principal auth.Principal, orderID string) (*models.Order, error) {
	order, err := s.GetOrderForUser(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, ErrOrderNotPending
	}

	payment, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	if err := s.gateway.CancelIntent(ctx, payment.IntentID); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpdateOrderStatus(ctx, orderID, models.OrderCancelled); err != nil {
			return err
		}
		payment.Status = models.StatusCancelled
		payment.UpdatedAt = time.Now()
		return tx.UpdatePayment(ctx, payment)
	})
	if err != nil {
		s.log.Error("ORDER", fmt.Sprintf("Failed to mark order %s cancelled: %v", orderID, err))
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	order.Status = models.OrderCancelled
	s.log.LogOrder("CANCELLED", orderID, "Order cancelled by user")
	return order, nil
}
