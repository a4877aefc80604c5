package scoring

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Rule IDs, in evaluation order.
const (
	RuleHighAmountNGN  = "high_amount_ngn"
	RuleHighAmountUSD  = "high_amount_usd"
	RuleCrossBorder    = "cross_border"
	RuleNighttime      = "nighttime"
	RuleRiskyMerchant  = "risky_merchant"
	RuleCardNotPresent = "card_not_present"
	RuleNewDevice      = "new_device"
)

// Rule is one additive heuristic: a CEL predicate, the points it adds when
// true, and the human-readable reason it contributes.
type Rule struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Weight     int    `json:"weight"`

	reason func(f *facts) string
}

// RiskyMerchants are the merchant categories that add risk.
var RiskyMerchants = []domain.MerchantCategory{
	domain.MerchantCrypto,
	domain.MerchantGambling,
	domain.MerchantBetting,
	domain.MerchantGiftCards,
}

// facts carries the raw values reason strings are rendered from.
type facts struct {
	tx           *domain.TransactionInput
	lastDeviceID string
	cfg          domain.ScoringConfig
}

// BuiltinRules returns the rule table in evaluation order.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:         RuleHighAmountNGN,
			Name:       "High amount (NGN)",
			Expression: `currency == "NGN" && amount_over_ngn_limit`,
			Weight:     30,
			reason: func(f *facts) string {
				return fmt.Sprintf("High amount in NGN (> ₦%s)", humanize.Commaf(f.cfg.HighAmountNGN))
			},
		},
		{
			ID:         RuleHighAmountUSD,
			Name:       "High amount (USD)",
			Expression: `currency == "USD" && amount_over_usd_limit`,
			Weight:     30,
			reason: func(f *facts) string {
				return fmt.Sprintf("High amount in USD (> $%s)", humanize.Commaf(f.cfg.HighAmountUSD))
			},
		},
		{
			ID:         RuleCrossBorder,
			Name:       "Cross-border",
			Expression: `country_key != "" && usual_country_key != "" && country_key != usual_country_key`,
			Weight:     25,
			reason: func(f *facts) string {
				return fmt.Sprintf("Transaction country '%s' differs from usual country '%s'", f.tx.Country, f.tx.UsualCountry)
			},
		},
		{
			ID:         RuleNighttime,
			Name:       "Nighttime",
			Expression: `hour >= 0 && hour <= 5`,
			Weight:     15,
			reason: func(*facts) string {
				return "Nighttime transaction (00:00-05:59)"
			},
		},
		{
			ID:         RuleRiskyMerchant,
			Name:       "Risky merchant",
			Expression: `merchant_category in risky_merchants`,
			Weight:     20,
			reason: func(f *facts) string {
				return fmt.Sprintf("Risky merchant category: %s", f.tx.MerchantCategory)
			},
		},
		{
			ID:         RuleCardNotPresent,
			Name:       "Card-not-present high value online",
			Expression: `channel == "Online" && !card_present && amount_usd_at_cnp_limit`,
			Weight:     20,
			reason: func(f *facts) string {
				return fmt.Sprintf("Card-not-present online transaction of $%s or more", humanize.Commaf(f.cfg.CardNotPresentUSD))
			},
		},
		{
			ID:         RuleNewDevice,
			Name:       "New device",
			Expression: `device_id != "" && last_device_id != "" && device_id != last_device_id`,
			Weight:     10,
			reason: func(f *facts) string {
				return fmt.Sprintf("New device for this session (last seen '%s')", f.lastDeviceID)
			},
		},
	}
}
