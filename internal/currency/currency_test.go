package currency_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudlens/internal/currency"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

func TestConverter_ToUSD(t *testing.T) {
	c := currency.NewConverter(1600)

	t.Run("USD unchanged", func(t *testing.T) {
		got, err := c.ToUSD(decimal.NewFromInt(250), domain.CurrencyUSD)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(250)))
	})

	t.Run("NGN divided by rate", func(t *testing.T) {
		got, err := c.ToUSD(decimal.NewFromInt(480000), domain.CurrencyNGN)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(300)), "got %s", got)
	})

	t.Run("unsupported currency", func(t *testing.T) {
		_, err := c.ToUSD(decimal.NewFromInt(1), domain.Currency("EUR"))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
	})
}

func TestNewConverter_DefaultRate(t *testing.T) {
	assert.Equal(t, domain.DefaultNGNPerUSD, currency.NewConverter(0).Rate())
	assert.Equal(t, domain.DefaultNGNPerUSD, currency.NewConverter(-5).Rate())
	assert.Equal(t, 1500.0, currency.NewConverter(1500).Rate())
}

func TestRoundTrip(t *testing.T) {
	for _, rate := range []float64{1, 3.7, 1600, 1234.56} {
		for _, x := range []float64{0, 1, 299.99, 500000, 1e9} {
			usd, err := currency.NGNToUSD(x, rate)
			require.NoError(t, err)
			back, err := currency.USDToNGN(usd, rate)
			require.NoError(t, err)
			assert.InDelta(t, x, back, 1e-6*(1+x), "rate=%v x=%v", rate, x)
		}
	}
}

func TestNonPositiveRate(t *testing.T) {
	_, err := currency.NGNToUSD(100, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = currency.USDToNGN(100, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
