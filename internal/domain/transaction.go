package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is a supported transaction currency.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
)

// Channel is the payment channel a transaction went through.
type Channel string

const (
	ChannelOnline Channel = "Online"
	ChannelPOS    Channel = "POS"
	ChannelATM    Channel = "ATM"
)

// MerchantCategory is a coarse merchant category label.
type MerchantCategory string

const (
	MerchantGroceries   MerchantCategory = "Groceries"
	MerchantFuel        MerchantCategory = "Fuel"
	MerchantElectronics MerchantCategory = "Electronics"
	MerchantTravel      MerchantCategory = "Travel"
	MerchantCrypto      MerchantCategory = "Crypto"
	MerchantGambling    MerchantCategory = "Gambling"
	MerchantBetting     MerchantCategory = "Betting"
	MerchantGiftCards   MerchantCategory = "Gift_Cards"
	MerchantOther       MerchantCategory = "Other"
)

var (
	currencies = []Currency{CurrencyNGN, CurrencyUSD}
	channels   = []Channel{ChannelOnline, ChannelPOS, ChannelATM}
	merchants  = []MerchantCategory{
		MerchantGroceries, MerchantFuel, MerchantElectronics, MerchantTravel,
		MerchantCrypto, MerchantGambling, MerchantBetting, MerchantGiftCards, MerchantOther,
	}
)

// Valid reports whether c is a recognized currency.
func (c Currency) Valid() bool {
	for _, v := range currencies {
		if c == v {
			return true
		}
	}
	return false
}

// Valid reports whether c is a recognized channel.
func (c Channel) Valid() bool {
	for _, v := range channels {
		if c == v {
			return true
		}
	}
	return false
}

// Valid reports whether m is a recognized merchant category.
func (m MerchantCategory) Valid() bool {
	for _, v := range merchants {
		if m == v {
			return true
		}
	}
	return false
}

// MerchantCategories returns every recognized merchant category in display order.
func MerchantCategories() []MerchantCategory {
	out := make([]MerchantCategory, len(merchants))
	copy(out, merchants)
	return out
}

// ParseCurrency normalizes free text into a Currency.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unrecognized currency %q", ErrInvalidInput, s)
	}
	return c, nil
}

// ParseChannel normalizes free text into a Channel.
func ParseChannel(s string) (Channel, error) {
	v := strings.TrimSpace(s)
	for _, c := range channels {
		if strings.EqualFold(v, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized channel %q", ErrInvalidInput, s)
}

// ParseMerchantCategory normalizes free text into a MerchantCategory.
func ParseMerchantCategory(s string) (MerchantCategory, error) {
	v := strings.TrimSpace(s)
	for _, m := range merchants {
		if strings.EqualFold(v, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized merchant category %q", ErrInvalidInput, s)
}

// ParseBool accepts the yes/no spellings found in uploaded spreadsheets.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: unrecognized boolean %q", ErrInvalidInput, s)
}

// TransactionInput is a single transaction submitted for scoring.
type TransactionInput struct {
	Amount           decimal.Decimal  `json:"amount"`
	Currency         Currency         `json:"currency"`
	Country          string           `json:"country"`
	UsualCountry     string           `json:"usualCountry,omitempty"`
	MerchantCategory MerchantCategory `json:"merchantCategory"`
	Channel          Channel          `json:"channel"`
	Hour             int              `json:"hour"`
	CardPresent      bool             `json:"cardPresent"`
	DeviceID         string           `json:"deviceId,omitempty"`
}

// Validate checks every field the scorer depends on.
func (t *TransactionInput) Validate() error {
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative, got %s", ErrInvalidInput, t.Amount)
	}
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("%w: hour must be within 0-23, got %d", ErrInvalidInput, t.Hour)
	}
	if !t.Currency.Valid() {
		return fmt.Errorf("%w: unrecognized currency %q", ErrInvalidInput, t.Currency)
	}
	if !t.Channel.Valid() {
		return fmt.Errorf("%w: unrecognized channel %q", ErrInvalidInput, t.Channel)
	}
	if !t.MerchantCategory.Valid() {
		return fmt.Errorf("%w: unrecognized merchant category %q", ErrInvalidInput, t.MerchantCategory)
	}
	return nil
}
