package receipt

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-payments/internal/models"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	token := issuer.Issue("ord_abc123")
	require.True(t, strings.HasPrefix(token, "ord_abc123."))

	orderID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ord_abc123", orderID)
}

func TestVerifyRejectsFlippedSignatureByte(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	token := issuer.Issue("ord_abc123")

	// Flip one hex character of the signature.
	last := token[len(token)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	tampered := token[:len(token)-1] + string(flipped)

	_, err := issuer.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUniformly(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	for _, tok := range []string{
		"",
		"no-separator",
		".only-signature",
		"ord_abc123.",
		"ord_abc123.nothex!!",
		"ord_abc123.deadbeef",
		NewTokenIssuer("other-secret").Issue("ord_abc123"),
	} {
		_, err := issuer.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestVerifyHandlesOrderIDWithDot(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	token := issuer.Issue("ord.with.dots")

	orderID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ord.with.dots", orderID)
}

func TestRenderPDFDeterministic(t *testing.T) {
	paidAt := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	order := &models.Order{
		OrderID:       "ord_abc123",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Currency:      "THB",
		Status:        models.OrderPaid,
		Subtotal:      decimal.RequireFromString("1000.00"),
		Fee:           decimal.RequireFromString("51.78"),
		Total:         decimal.RequireFromString("1051.78"),
		Items: []*models.OrderItem{
			{Name: "Conference Pass", Quantity: 1, UnitPrice: decimal.RequireFromString("800.00")},
			{Name: "Workshop: Distributed Systems", Quantity: 1, UnitPrice: decimal.RequireFromString("200.00")},
		},
	}
	payment := &models.Payment{
		PaymentID: "pay_1",
		OrderID:   "ord_abc123",
		Status:    models.StatusPaid,
		Channel:   "card",
		UpdatedAt: paidAt,
	}

	out, err := RenderPDF(order, payment)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "%PDF", string(out[:4]))
}
