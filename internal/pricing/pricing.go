// Package pricing converts an organizer's desired net take-home into the
// gross amount the payer must be charged, inclusive of gateway fees and the
// tax levied on those fees. Pure computation, no I/O.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrUnknownMethod = errors.New("unknown fee method")

// FeeMethod is one payment-method class with its gateway fee structure.
type FeeMethod struct {
	Code     string
	Label    string
	Rate     decimal.Decimal
	FixedFee decimal.Decimal
	TaxRate  decimal.Decimal
	// StripeTypes are the payment_method_types passed to the gateway.
	StripeTypes []string
}

// Quote is the result of pricing a cart: Net + Fee == Gross to the cent.
type Quote struct {
	Net   decimal.Decimal
	Fee   decimal.Decimal
	Gross decimal.Decimal
}

// DefaultMethods returns the configured payment-method classes. Rates follow
// the gateway's published THB fee schedule.
func DefaultMethods() map[string]FeeMethod {
	return map[string]FeeMethod{
		"promptpay": {
			Code:        "promptpay",
			Label:       "PromptPay QR",
			Rate:        decimal.NewFromFloat(0.0165),
			FixedFee:    decimal.Zero,
			TaxRate:     decimal.NewFromFloat(0.07),
			StripeTypes: []string{"promptpay"},
		},
		"card_domestic": {
			Code:        "card_domestic",
			Label:       "Domestic card",
			Rate:        decimal.NewFromFloat(0.0365),
			FixedFee:    decimal.NewFromInt(10),
			TaxRate:     decimal.NewFromFloat(0.07),
			StripeTypes: []string{"card"},
		},
		"card_international": {
			Code:        "card_international",
			Label:       "International card",
			Rate:        decimal.NewFromFloat(0.0435),
			FixedFee:    decimal.NewFromInt(10),
			TaxRate:     decimal.NewFromFloat(0.07),
			StripeTypes: []string{"card"},
		},
	}
}

// Gross computes the amount to charge so that after the gateway deducts
// rate*gross + fixedFee and tax is applied to that deduction, the organizer
// nets exactly net:
//
//	gross = ceil( (net + fixedFee*(1+tax)) / (1 - rate*(1+tax)), 2 )
//
// The ceiling guarantees the organizer is never under-collected by rounding.
func Gross(net decimal.Decimal, m FeeMethod) decimal.Decimal {
	one := decimal.NewFromInt(1)
	taxed := one.Add(m.TaxRate)
	numerator := net.Add(m.FixedFee.Mul(taxed))
	denominator := one.Sub(m.Rate.Mul(taxed))
	return numerator.DivRound(denominator, 12).RoundCeil(2)
}

// Fee is the displayed surcharge: gross minus net, already at 2 decimals.
func Fee(net decimal.Decimal, m FeeMethod) decimal.Decimal {
	return Gross(net, m).Sub(net.Round(2))
}

// QuoteFor prices a net amount under the given method.
func QuoteFor(net decimal.Decimal, m FeeMethod) Quote {
	gross := Gross(net, m)
	return Quote{
		Net:   net.Round(2),
		Fee:   gross.Sub(net.Round(2)),
		Gross: gross,
	}
}
