package handlers_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"conference-payments/internal/auth"
	"conference-payments/internal/config"
	"conference-payments/internal/handlers"
	"conference-payments/internal/logger"
	"conference-payments/internal/models"
	"conference-payments/internal/pricing"
	"conference-payments/internal/services"
	"conference-payments/internal/storage"
)

const testWebhookSecret = "whsec_test_secret"

func newWebhookRouter(t *testing.T, store *storage.MemoryStore, gateway services.Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewLogger()

	stripeService, err := services.NewStripeService(config.StripeConfig{
		SecretKey:     "sk_test_dummy",
		WebhookSecret: testWebhookSecret,
	}, log)
	require.NoError(t, err)

	reconcile := services.NewReconcileService(store, gateway, nopPublisher{}, log)
	handler := handlers.NewStripeHandler(stripeService, reconcile, log)

	router := gin.New()
	router.POST("/api/v1/stripe/webhook", handler.Webhook)
	return router
}

func signedWebhookRequest(t *testing.T, eventType, intentID string) *http.Request {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_test",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q}}
	}`, stripe.APIVersion, eventType, intentID))

	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", header)
	return req
}

func pendingOrder(t *testing.T, store *storage.MemoryStore, intentID string) *models.CheckoutResponse {
	t.Helper()
	gateway := &stubGateway{intent: &services.Intent{ID: intentID, ClientSecret: intentID + "_secret", Status: models.StatusPending}}
	orders := services.NewOrderService(store, gateway, pricing.DefaultMethods(), logger.NewLogger())
	resp, err := orders.Checkout(context.Background(), auth.Principal{
		UserID: "user-1",
		Email:  "user-1@example.com",
		Name:   "Test User",
	}, &models.CheckoutRequest{
		PrimaryCode: "regular",
		Currency:    "thb",
		FeeMethod:   "card_domestic",
	})
	require.NoError(t, err)
	return resp
}

func TestWebhookPaymentSucceeded(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRegularTicket(store)
	resp := pendingOrder(t, store, "pi_wh1")

	paid := &stubGateway{intent: &services.Intent{ID: "pi_wh1", Status: models.StatusPaid, Channel: "card"}}
	router := newWebhookRouter(t, store, paid)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest(t, "payment_intent.succeeded", "pi_wh1"))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body["received"])

	order, err := store.GetOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)

	reg, err := store.GetRegistrationByOrderID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)
}

func TestWebhookPaymentFailed(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRegularTicket(store)
	resp := pendingOrder(t, store, "pi_wh2")

	router := newWebhookRouter(t, store, &stubGateway{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest(t, "payment_intent.payment_failed", "pi_wh2"))

	require.Equal(t, http.StatusOK, w.Code)

	order, err := store.GetOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.Status)

	payment, err := store.GetPaymentByOrderID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, payment.Status)
}

func TestWebhookBadSignature(t *testing.T) {
	store := storage.NewMemoryStore()
	router := newWebhookRouter(t, store, &stubGateway{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook",
		strings.NewReader(`{"type":"payment_intent.succeeded"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookUnknownIntentAcknowledged(t *testing.T) {
	store := storage.NewMemoryStore()
	router := newWebhookRouter(t, store, &stubGateway{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest(t, "payment_intent.succeeded", "pi_ghost"))

	// Intents this service never issued are acknowledged so Stripe stops
	// redelivering them.
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body["received"])
}

func TestWebhookIgnoredEventType(t *testing.T) {
	store := storage.NewMemoryStore()
	router := newWebhookRouter(t, store, &stubGateway{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest(t, "charge.refunded", "pi_whatever"))

	assert.Equal(t, http.StatusOK, w.Code)
}
