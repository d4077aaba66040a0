package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func method(rate, fixed, tax string) FeeMethod {
	return FeeMethod{
		Code:     "test",
		Rate:     decimal.RequireFromString(rate),
		FixedFee: decimal.RequireFromString(fixed),
		TaxRate:  decimal.RequireFromString(tax),
	}
}

func TestGrossDomesticCardReference(t *testing.T) {
	// net=1000 THB, rate 0.0365, fixed fee 10, VAT 0.07:
	// (1000 + 10*1.07) / (1 - 0.0365*1.07) = 1051.7771... -> ceil 1051.78
	m := method("0.0365", "10", "0.07")
	gross := Gross(decimal.NewFromInt(1000), m)
	assert.True(t, gross.Equal(decimal.RequireFromString("1051.78")),
		"got %s", gross)

	fee := Fee(decimal.NewFromInt(1000), m)
	assert.True(t, fee.Equal(decimal.RequireFromString("51.78")), "got %s", fee)
}

func TestGrossNetFeeIdentity(t *testing.T) {
	methods := []FeeMethod{
		method("0.0165", "0", "0.07"),
		method("0.0365", "10", "0.07"),
		method("0.0435", "10", "0.07"),
	}
	nets := []string{"1", "99.99", "1000", "1234.56", "2500", "45000", "0.01"}

	for _, m := range methods {
		for _, n := range nets {
			net := decimal.RequireFromString(n)
			q := QuoteFor(net, m)
			assert.True(t, q.Gross.Sub(q.Fee).Equal(q.Net),
				"gross %s - fee %s != net %s", q.Gross, q.Fee, q.Net)
			assert.True(t, q.Gross.Exponent() >= -2,
				"gross %s has more than 2 decimal places", q.Gross)
		}
	}
}

func TestGrossNeverUnderCollects(t *testing.T) {
	// For every computed gross, the organizer's realized take-home
	// gross - (rate*gross + fixed)*(1+tax) must be >= net.
	m := method("0.0365", "10", "0.07")
	taxed := decimal.RequireFromString("1.07")

	for _, n := range []string{"1", "10", "333.33", "1000", "9999.99", "100000"} {
		net := decimal.RequireFromString(n)
		gross := Gross(net, m)
		deduction := m.Rate.Mul(gross).Add(m.FixedFee).Mul(taxed)
		takeHome := gross.Sub(deduction)
		require.True(t, takeHome.GreaterThanOrEqual(net),
			"net %s: take-home %s fell below net (gross %s)", net, takeHome, gross)
		// And one cent less would under-collect: the ceiling is tight.
		lower := gross.Sub(decimal.RequireFromString("0.01"))
		lowerTake := lower.Sub(m.Rate.Mul(lower).Add(m.FixedFee).Mul(taxed))
		require.True(t, lowerTake.LessThan(net),
			"net %s: gross %s is not the minimal 2dp charge", net, gross)
	}
}

func TestZeroRateZeroFee(t *testing.T) {
	m := method("0", "0", "0")
	net := decimal.RequireFromString("750.25")
	q := QuoteFor(net, m)
	assert.True(t, q.Gross.Equal(net))
	assert.True(t, q.Fee.IsZero())
}

func TestDefaultMethodsConfigured(t *testing.T) {
	methods := DefaultMethods()
	require.Contains(t, methods, "promptpay")
	require.Contains(t, methods, "card_domestic")
	require.Contains(t, methods, "card_international")

	for code, m := range methods {
		assert.Equal(t, code, m.Code)
		assert.NotEmpty(t, m.StripeTypes)
		assert.True(t, m.Rate.LessThan(decimal.NewFromInt(1)))
	}
}
