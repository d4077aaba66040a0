package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"conference-payments/internal/models"
	"conference-payments/internal/receipt"
	"conference-payments/internal/services"
	"conference-payments/internal/storage"
	"conference-payments/internal/utils"

	mw "conference-payments/internal/middleware"
)

type PaymentHandler struct {
	orders    *services.OrderService
	reconcile *services.ReconcileService
	tokens    *receipt.TokenIssuer
	store     storage.Store
}

func NewPaymentHandler(orders *services.OrderService, reconcile *services.ReconcileService, tokens *receipt.TokenIssuer, store storage.Store) *PaymentHandler {
	return &PaymentHandler{
		orders:    orders,
		reconcile: reconcile,
		tokens:    tokens,
		store:     store,
	}
}

// domainStatus maps service sentinels to an HTTP status and machine-readable
// code. Unknown errors fall through to a logged 500 with a generic message.
func domainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrDuplicatePrimary):
		return http.StatusBadRequest, "DUPLICATE_PRIMARY"
	case errors.Is(err, services.ErrNoPrimaryTicket):
		return http.StatusBadRequest, "NO_PRIMARY_TICKET"
	case errors.Is(err, services.ErrDuplicateAddOn):
		return http.StatusBadRequest, "DUPLICATE_ADDON"
	case errors.Is(err, services.ErrSoldOut):
		return http.StatusBadRequest, "SOLD_OUT"
	case errors.Is(err, services.ErrSessionRequired):
		return http.StatusBadRequest, "SESSION_REQUIRED"
	case errors.Is(err, services.ErrSessionNotLinked):
		return http.StatusBadRequest, "SESSION_NOT_LINKED"
	case errors.Is(err, services.ErrSessionFull):
		return http.StatusBadRequest, "SESSION_FULL"
	case errors.Is(err, services.ErrEmptyCart):
		return http.StatusBadRequest, "EMPTY_CART"
	case errors.Is(err, services.ErrUnknownFeeMethod):
		return http.StatusBadRequest, "UNKNOWN_FEE_METHOD"
	case errors.Is(err, services.ErrOrderNotPending):
		return http.StatusBadRequest, "ORDER_NOT_PENDING"
	case errors.Is(err, services.ErrOrderNotPaid):
		return http.StatusBadRequest, "ORDER_NOT_PAID"
	case errors.Is(err, services.ErrTicketNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrPaymentNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, services.ErrNotOrderOwner):
		return http.StatusForbidden, "FORBIDDEN"
	default:
		return http.StatusInternalServerError, ""
	}
}

func respondError(c *gin.Context, err error) {
	status, code := domainStatus(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, utils.ErrorResponse("Internal server error", ""))
		return
	}
	c.JSON(status, utils.CodeResponse(code, err.Error()))
}

// Checkout creates a pending order and its gateway payment intent.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	principal, ok := mw.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Authentication required", ""))
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	resp, err := h.orders.Checkout(c.Request.Context(), principal, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Order created", resp))
}

// VerifyPayment is the client-side polling path after a payment redirect. It
// may reconcile the order as a side effect when the gateway already settled.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	principal, ok := mw.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Authentication required", ""))
		return
	}

	intentID := c.Query("payment_intent")
	if intentID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("payment_intent query parameter is required", ""))
		return
	}

	resp, err := h.reconcile.VerifyIntentForUser(c.Request.Context(), principal, intentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payment status", resp))
}

// OrderStatus reports an order's state, reconciling first if stale.
func (h *PaymentHandler) OrderStatus(c *gin.Context) {
	principal, ok := mw.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Authentication required", ""))
		return
	}

	order, err := h.orders.GetOrderForUser(c.Request.Context(), principal, c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp, err := h.reconcile.StatusForOrder(c.Request.Context(), order)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Order status", resp))
}

// CancelIntent cancels a pending order's gateway intent.
func (h *PaymentHandler) CancelIntent(c *gin.Context) {
	principal, ok := mw.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Authentication required", ""))
		return
	}

	var req models.CancelIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), principal, req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Order cancelled", gin.H{
		"orderID": order.OrderID,
		"status":  order.Status,
	}))
}

// DownloadReceipt streams the receipt PDF for a signed token. Tokens never
// expire; a bad token gets a uniform 401.
func (h *PaymentHandler) DownloadReceipt(c *gin.Context) {
	orderID, err := h.tokens.Verify(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Invalid receipt token", ""))
		return
	}

	order, err := h.store.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found", ""))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Internal server error", ""))
		return
	}

	if order.Status != models.OrderPaid {
		c.JSON(http.StatusBadRequest, utils.CodeResponse("ORDER_NOT_PAID", "receipt is only available for paid orders"))
		return
	}

	payment, err := h.store.GetPaymentByOrderID(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Internal server error", ""))
		return
	}

	pdf, err := receipt.RenderPDF(order, payment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to render receipt", ""))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="receipt-`+orderID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// ReceiptToken returns the permanent receipt link token for a paid order.
func (h *PaymentHandler) ReceiptToken(c *gin.Context) {
	principal, ok := mw.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Authentication required", ""))
		return
	}

	order, err := h.orders.GetOrderForUser(c.Request.Context(), principal, c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if order.Status != models.OrderPaid {
		c.JSON(http.StatusBadRequest, utils.CodeResponse("ORDER_NOT_PAID", "receipt is only available for paid orders"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Receipt token", gin.H{
		"token": h.tokens.Issue(order.OrderID),
	}))
}
