// Package currency normalizes transaction amounts to USD using a fixed demo rate.
package currency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Converter converts amounts between NGN and USD at a fixed rate.
// The rate is configuration, never fetched live.
type Converter struct {
	ngnPerUSD decimal.Decimal
}

// NewConverter creates a converter. A non-positive rate falls back to the default.
func NewConverter(ngnPerUSD float64) *Converter {
	if ngnPerUSD <= 0 {
		ngnPerUSD = domain.DefaultNGNPerUSD
	}
	return &Converter{ngnPerUSD: decimal.NewFromFloat(ngnPerUSD)}
}

// Rate returns the NGN per USD rate.
func (c *Converter) Rate() float64 {
	return c.ngnPerUSD.InexactFloat64()
}

// ToUSD normalizes amount to USD.
func (c *Converter) ToUSD(amount decimal.Decimal, cur domain.Currency) (decimal.Decimal, error) {
	switch cur {
	case domain.CurrencyUSD:
		return amount, nil
	case domain.CurrencyNGN:
		return amount.Div(c.ngnPerUSD), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrUnsupportedCurrency, cur)
	}
}

// NGNToUSD converts a naira amount at rate NGN per USD.
func NGNToUSD(amount, rate float64) (float64, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: exchange rate must be positive, got %v", domain.ErrInvalidInput, rate)
	}
	return amount / rate, nil
}

// USDToNGN converts a dollar amount at rate NGN per USD.
func USDToNGN(amount, rate float64) (float64, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: exchange rate must be positive, got %v", domain.ErrInvalidInput, rate)
	}
	return amount * rate, nil
}
