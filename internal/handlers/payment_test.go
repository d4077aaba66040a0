package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-payments/internal/auth"
	"conference-payments/internal/handlers"
	"conference-payments/internal/logger"
	"conference-payments/internal/middleware"
	"conference-payments/internal/models"
	"conference-payments/internal/pricing"
	"conference-payments/internal/receipt"
	"conference-payments/internal/services"
	"conference-payments/internal/storage"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testReceiptSecret = "test-receipt-secret"
)

// stubGateway returns canned intents without touching the network.
type stubGateway struct {
	intent *services.Intent
}

func (g *stubGateway) CreateIntent(ctx context.Context, params services.CreateIntentParams) (*services.Intent, error) {
	return g.intent, nil
}

func (g *stubGateway) GetIntent(ctx context.Context, intentID string) (*services.Intent, error) {
	return g.intent, nil
}

func (g *stubGateway) CancelIntent(ctx context.Context, intentID string) error {
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishPaymentEvent(*models.PaymentEvent) error { return nil }

func newTestRouter(t *testing.T, store *storage.MemoryStore, gateway services.Gateway) (*gin.Engine, *receipt.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewLogger()

	orders := services.NewOrderService(store, gateway, pricing.DefaultMethods(), log)
	reconcile := services.NewReconcileService(store, gateway, nopPublisher{}, log)
	tokens := receipt.NewTokenIssuer(testReceiptSecret)
	handler := handlers.NewPaymentHandler(orders, reconcile, tokens, store)

	router := gin.New()
	router.GET("/payments/receipt/:token", handler.DownloadReceipt)

	v1 := router.Group("/api/v1/payments")
	v1.Use(middleware.RequireAuth(testJWTSecret, log))
	{
		v1.POST("/checkout", handler.Checkout)
		v1.GET("/:orderId/status", handler.OrderStatus)
		v1.POST("/cancel-intent", handler.CancelIntent)
	}

	return router, tokens
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	raw, err := auth.IssueToken(testJWTSecret, auth.Principal{
		UserID: userID,
		Email:  userID + "@example.com",
		Name:   "Test User",
	}, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)
	return "Bearer " + raw
}

func seedRegularTicket(store *storage.MemoryStore) {
	store.SeedTicketType(&models.TicketType{
		TicketTypeID: "tt_regular",
		Code:         "regular",
		Name:         "Regular Ticket",
		Category:     models.CategoryPrimary,
		Currency:     "thb",
		NetPrice:     decimal.NewFromInt(1000),
		Quota:        500,
		Active:       true,
	})
}

func TestCheckoutEndpoint(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRegularTicket(store)
	gateway := &stubGateway{intent: &services.Intent{ID: "pi_h1", ClientSecret: "pi_h1_secret", Status: models.StatusPending}}
	router, _ := newTestRouter(t, store, gateway)

	body, _ := json.Marshal(models.CheckoutRequest{
		PrimaryCode: "regular",
		Currency:    "thb",
		FeeMethod:   "card_domestic",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                    `json:"success"`
		Data    models.CheckoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "pi_h1_secret", resp.Data.ClientSecret)
	assert.Equal(t, "1051.78", resp.Data.Total.StringFixed(2))
}

func TestCheckoutRequiresAuth(t *testing.T) {
	store := storage.NewMemoryStore()
	router, _ := newTestRouter(t, store, &stubGateway{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutDomainErrorCode(t *testing.T) {
	store := storage.NewMemoryStore()
	router, _ := newTestRouter(t, store, &stubGateway{})

	// Add-on-only cart without a confirmed registration.
	body, _ := json.Marshal(models.CheckoutRequest{
		AddOns:    []models.AddOnSelection{{Code: "gala-dinner"}},
		Currency:  "thb",
		FeeMethod: "promptpay",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NO_PRIMARY_TICKET", resp.Code)
}

func TestDownloadReceipt(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRegularTicket(store)

	// A paid order with its payment, written directly.
	order := &models.Order{
		OrderID:       "ord_receipt",
		UserID:        "user-1",
		CustomerName:  "Test User",
		CustomerEmail: "user-1@example.com",
		Currency:      "thb",
		FeeMethod:     "card_domestic",
		Status:        models.OrderPaid,
		Subtotal:      decimal.NewFromInt(1000),
		Fee:           decimal.RequireFromString("51.78"),
		Total:         decimal.RequireFromString("1051.78"),
		CreatedAt:     time.Now(),
	}
	err := store.RunInTx(context.Background(), func(tx storage.Tx) error {
		if err := tx.CreateOrder(context.Background(), order); err != nil {
			return err
		}
		return tx.CreateOrderItem(context.Background(), &models.OrderItem{
			ItemID:       "item_r1",
			OrderID:      order.OrderID,
			TicketTypeID: "tt_regular",
			Kind:         models.ItemPrimary,
			Name:         "Regular Ticket",
			UnitPrice:    decimal.NewFromInt(1000),
			Quantity:     1,
		})
	})
	require.NoError(t, err)
	require.NoError(t, store.SavePayment(context.Background(), &models.Payment{
		PaymentID: "pay_r1",
		OrderID:   order.OrderID,
		IntentID:  "pi_r1",
		Status:    models.StatusPaid,
		Amount:    order.Total,
		Currency:  "thb",
		Channel:   "card",
	}))

	router, tokens := newTestRouter(t, store, &stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/payments/receipt/"+tokens.Issue(order.OrderID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestDownloadReceiptBadToken(t *testing.T) {
	store := storage.NewMemoryStore()
	router, _ := newTestRouter(t, store, &stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/payments/receipt/ord_x.deadbeef", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownloadReceiptUnpaidOrder(t *testing.T) {
	store := storage.NewMemoryStore()
	err := store.RunInTx(context.Background(), func(tx storage.Tx) error {
		return tx.CreateOrder(context.Background(), &models.Order{
			OrderID: "ord_pending",
			UserID:  "user-1",
			Status:  models.OrderPending,
		})
	})
	require.NoError(t, err)

	router, tokens := newTestRouter(t, store, &stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/payments/receipt/"+tokens.Issue("ord_pending"), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ORDER_NOT_PAID", resp.Code)
}
