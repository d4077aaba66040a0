package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"

	"conference-payments/internal/logger"
	"conference-payments/internal/models"
	"conference-payments/internal/services"
	"conference-payments/internal/utils"
)

type StripeHandler struct {
	stripe    *services.StripeService
	reconcile *services.ReconcileService
	log       *logger.Logger
}

func NewStripeHandler(stripeService *services.StripeService, reconcile *services.ReconcileService, log *logger.Logger) *StripeHandler {
	return &StripeHandler{
		stripe:    stripeService,
		reconcile: reconcile,
		log:       log,
	}
}

// Webhook receives Stripe events. The verified event carries the intent's
// final state, so it is passed as a hint and no confirmation round-trip to
// the Stripe API is needed.
func (h *StripeHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Failed to read request body", ""))
		return
	}

	event, err := h.stripe.ConstructWebhookEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.LogSecurity("WEBHOOK", fmt.Sprintf("Signature verification failed: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook signature", ""))
		return
	}

	var status models.PaymentStatus
	switch event.Type {
	case "payment_intent.succeeded":
		status = models.StatusPaid
	case "payment_intent.payment_failed":
		status = models.StatusFailed
	case "payment_intent.canceled":
		status = models.StatusCancelled
	default:
		// Not a state we act on; acknowledge so Stripe stops retrying.
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.log.LogPayment("WEBHOOK", string(event.Type), fmt.Sprintf("Failed to decode payment intent: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Malformed event payload", ""))
		return
	}

	hint := &services.Intent{
		ID:     pi.ID,
		Status: status,
	}
	if pi.LatestCharge != nil {
		if pi.LatestCharge.PaymentMethodDetails != nil {
			hint.Channel = string(pi.LatestCharge.PaymentMethodDetails.Type)
		}
		hint.ReceiptURL = pi.LatestCharge.ReceiptURL
	}

	result, err := h.reconcile.ReconcileIntent(c.Request.Context(), pi.ID, hint)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			// An intent we did not create, or one from another environment.
			h.log.LogPayment("WEBHOOK", pi.ID, fmt.Sprintf("No payment for intent (%s)", event.Type))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		h.log.LogPayment("WEBHOOK", pi.ID, fmt.Sprintf("Reconciliation failed (%s): %v", event.Type, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Reconciliation failed", ""))
		return
	}

	h.log.LogPayment("WEBHOOK", pi.ID, fmt.Sprintf("Order %s now %s after %s (already=%v)",
		result.Order.OrderID, result.Order.Status, event.Type, result.AlreadyReconciled))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
