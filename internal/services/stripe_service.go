package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"conference-payments/internal/config"
	"conference-payments/internal/logger"
	"conference-payments/internal/models"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrWebhookSignature       = errors.New("webhook signature verification failed")
)

// Intent is the gateway-agnostic view of a payment intent the reconciler
// works with.
type Intent struct {
	ID           string
	ClientSecret string
	Status       models.PaymentStatus
	Channel      string
	ReceiptURL   string
}

// CreateIntentParams carries everything the gateway needs, including metadata
// that makes later reconciliation idempotent and auditable.
type CreateIntentParams struct {
	OrderID     string
	Amount      decimal.Decimal
	Net         decimal.Decimal
	Fee         decimal.Decimal
	Currency    string
	MethodTypes []string
	Description string
	LineItems   []string
}

// Gateway abstracts the payment processor so the order builder and reconciler
// can be exercised without network calls.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// StripeService handles integration with the Stripe payment gateway.
type StripeService struct {
	client        *client.API
	webhookSecret string
	log           *logger.Logger
}

func NewStripeService(cfg config.StripeConfig, log *logger.Logger) (*StripeService, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		log:           log,
	}, nil
}

// toMinorUnits converts a 2dp decimal amount to the smallest currency unit.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreateIntent creates a payment intent carrying the order id, net amount,
// fee, and resolved line items in its metadata.
func (s *StripeService) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	s.log.LogPayment("INTENT", params.OrderID, fmt.Sprintf("Creating payment intent for %s %s",
		params.Amount.StringFixed(2), params.Currency))

	metadata := map[string]string{
		"order_id": params.OrderID,
		"net":      params.Net.StringFixed(2),
		"fee":      params.Fee.StringFixed(2),
	}
	for i, li := range params.LineItems {
		metadata[fmt.Sprintf("item_%d", i)] = li
	}

	types := make([]*string, 0, len(params.MethodTypes))
	for _, t := range params.MethodTypes {
		types = append(types, stripe.String(t))
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(params.Amount)),
		Currency:           stripe.String(params.Currency),
		Description:        stripe.String(params.Description),
		Metadata:           metadata,
		PaymentMethodTypes: types,
	}
	piParams.Context = ctx

	pi, err := s.client.PaymentIntents.New(piParams)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.LogPayment("INTENT", params.OrderID, fmt.Sprintf("Payment intent created: %s", pi.ID))
	return s.mapIntent(pi), nil
}

// GetIntent retrieves the live intent state from Stripe.
func (s *StripeService) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", intentID, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	return s.mapIntent(pi), nil
}

// CancelIntent cancels a pending intent at the gateway.
func (s *StripeService) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := s.client.PaymentIntents.Cancel(intentID, params); err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to cancel payment intent %s: %v", intentID, err))
		return fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.LogPayment("CANCEL", intentID, "Payment intent cancelled at gateway")
	return nil
}

// ConstructWebhookEvent verifies the Stripe-Signature header against the
// shared secret before trusting the payload.
func (s *StripeService) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		s.log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected webhook: %v", err))
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}
	return event, nil
}

func (s *StripeService) mapIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapIntentStatus(pi.Status),
	}

	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		charge, err := s.client.Charges.Get(pi.LatestCharge.ID, nil)
		if err == nil {
			intent.ReceiptURL = charge.ReceiptURL
			if charge.PaymentMethodDetails != nil {
				intent.Channel = string(charge.PaymentMethodDetails.Type)
			}
		}
	}
	return intent
}

func mapIntentStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.StatusPaid
	case stripe.PaymentIntentStatusCanceled:
		return models.StatusCancelled
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return models.StatusPending
	default:
		return models.StatusFailed
	}
}
