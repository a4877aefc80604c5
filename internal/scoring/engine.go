// Package scoring provides the CEL-based risk rule engine and the label mapper.
package scoring

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fraudlens/internal/currency"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

// MaxScore is the ceiling every score is clamped to.
const MaxScore = 100

// Engine evaluates the additive rule table against a transaction.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	env       *cel.Env
	rules     []*CompiledRule
	converter *currency.Converter
	cfg       domain.ScoringConfig
	risky     []string

	highNGN decimal.Decimal
	highUSD decimal.Decimal
	cnpUSD  decimal.Decimal
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    Rule
	Program cel.Program
}

// Outcome is the result of one Score call.
type Outcome struct {
	Result domain.ScoringResult

	// Triggered lists the IDs of the rules that fired, in evaluation order.
	Triggered []string

	// AmountUSD is the amount normalized to USD.
	AmountUSD decimal.Decimal

	// LastDeviceID is the device id the caller should thread into its next call.
	LastDeviceID string
}

// NewEngine compiles the builtin rule table.
// Zero-valued thresholds in cfg are replaced by the defaults.
func NewEngine(cfg domain.ScoringConfig) (*Engine, error) {
	cfg = withDefaults(cfg)

	env, err := cel.NewEnv(
		cel.Variable("currency", cel.StringType),
		cel.Variable("country_key", cel.StringType),
		cel.Variable("usual_country_key", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("card_present", cel.BoolType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("last_device_id", cel.StringType),
		// Amount comparisons are made on decimals before evaluation.
		cel.Variable("amount_over_ngn_limit", cel.BoolType),
		cel.Variable("amount_over_usd_limit", cel.BoolType),
		cel.Variable("amount_usd_at_cnp_limit", cel.BoolType),
		cel.Variable("risky_merchants", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:       env,
		converter: currency.NewConverter(cfg.NGNPerUSD),
		cfg:       cfg,
		highNGN:   decimal.NewFromFloat(cfg.HighAmountNGN),
		highUSD:   decimal.NewFromFloat(cfg.HighAmountUSD),
		cnpUSD:    decimal.NewFromFloat(cfg.CardNotPresentUSD),
	}
	for _, m := range RiskyMerchants {
		e.risky = append(e.risky, string(m))
	}

	for _, rule := range BuiltinRules() {
		compiled, err := e.compileRule(rule)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiled)
	}

	return e, nil
}

func withDefaults(cfg domain.ScoringConfig) domain.ScoringConfig {
	def := domain.DefaultScoringConfig()
	if cfg.NGNPerUSD <= 0 {
		cfg.NGNPerUSD = def.NGNPerUSD
	}
	if cfg.HighAmountNGN <= 0 {
		cfg.HighAmountNGN = def.HighAmountNGN
	}
	if cfg.HighAmountUSD <= 0 {
		cfg.HighAmountUSD = def.HighAmountUSD
	}
	if cfg.CardNotPresentUSD <= 0 {
		cfg.CardNotPresentUSD = def.CardNotPresentUSD
	}
	if cfg.VelocityMinRepeats <= 0 {
		cfg.VelocityMinRepeats = def.VelocityMinRepeats
	}
	return cfg
}

// Score evaluates every rule against tx. lastDeviceID is the device id seen on
// the previous interactive call of the same session, or empty.
//
// Every rule is evaluated; the score is the sum of the weights of those that
// fire, clamped to MaxScore. An invalid transaction yields an error and no
// partial result.
func (e *Engine) Score(tx domain.TransactionInput, lastDeviceID string) (Outcome, error) {
	if err := tx.Validate(); err != nil {
		return Outcome{}, err
	}

	amountUSD, err := e.converter.ToUSD(tx.Amount, tx.Currency)
	if err != nil {
		return Outcome{}, err
	}

	deviceID := strings.TrimSpace(tx.DeviceID)
	lastDeviceID = strings.TrimSpace(lastDeviceID)

	f := &facts{
		tx:           &tx,
		lastDeviceID: lastDeviceID,
		cfg:          e.cfg,
	}

	activation := map[string]any{
		"amount_over_ngn_limit":   tx.Amount.GreaterThan(e.highNGN),
		"amount_over_usd_limit":   tx.Amount.GreaterThan(e.highUSD),
		"amount_usd_at_cnp_limit": amountUSD.GreaterThanOrEqual(e.cnpUSD),
		"currency":                string(tx.Currency),
		"country_key":             strings.ToLower(strings.TrimSpace(tx.Country)),
		"usual_country_key":       strings.ToLower(strings.TrimSpace(tx.UsualCountry)),
		"merchant_category":       string(tx.MerchantCategory),
		"channel":                 string(tx.Channel),
		"hour":                    int64(tx.Hour),
		"card_present":            tx.CardPresent,
		"device_id":               deviceID,
		"last_device_id":          lastDeviceID,
		"risky_merchants":         e.risky,
	}

	out := Outcome{
		Result:       domain.ScoringResult{Reasons: []string{}},
		AmountUSD:    amountUSD,
		LastDeviceID: lastDeviceID,
	}

	for _, r := range e.rules {
		fired, err := evaluateRule(r, activation)
		if err != nil {
			return Outcome{}, err
		}
		if !fired {
			continue
		}
		out.Result.Score += r.Rule.Weight
		out.Result.Reasons = append(out.Result.Reasons, r.Rule.reason(f))
		out.Triggered = append(out.Triggered, r.Rule.ID)
	}

	if out.Result.Score > MaxScore {
		out.Result.Score = MaxScore
	}

	if deviceID != "" {
		out.LastDeviceID = deviceID
	}

	return out, nil
}

// evaluateRule runs a single compiled predicate.
func evaluateRule(rule *CompiledRule, activation map[string]any) (bool, error) {
	val, _, err := rule.Program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("rule %s: evaluation failed: %w", rule.Rule.ID, err)
	}
	fired, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: expected bool result, got %T", rule.Rule.ID, val.Value())
	}
	return fired, nil
}

// Rules returns the loaded rule table in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Rule
	}
	return out
}

// Config returns the effective thresholds.
func (e *Engine) Config() domain.ScoringConfig {
	return e.cfg
}

// Converter returns the currency converter the engine normalizes with.
func (e *Engine) Converter() *currency.Converter {
	return e.converter
}

func (e *Engine) compileRule(rule Rule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
