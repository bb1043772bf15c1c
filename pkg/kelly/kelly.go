// Package kelly sizes stakes with the fractional Kelly criterion.
package kelly

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/bet-copilot/core"
)

// RiskLevel buckets a recommended stake.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Recommendation is the staking advice for one (probability, odds) pair.
// Kelly values and the stake are percentages of bankroll.
type Recommendation struct {
	ModelProb        float64   `json:"model_prob"`
	Odds             float64   `json:"odds"`
	EV               float64   `json:"ev"`
	FullKelly        float64   `json:"full_kelly"`
	FractionalKelly  float64   `json:"fractional_kelly"`
	RecommendedStake float64   `json:"recommended_stake"`
	IsValueBet       bool      `json:"is_value_bet"`
	RiskLevel        RiskLevel `json:"risk_level"`
}

// Config configures the calculator.
type Config struct {
	Fraction    float64 // Default: 0.25 (quarter Kelly)
	MaxStakePct float64 // Default: 5.0 (% of bankroll)
	MinEV       float64 // Default: 0.05
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Fraction:    0.25,
		MaxStakePct: 5.0,
		MinEV:       0.05,
	}
}

// Calculator is stateless after construction and safe for concurrent use.
type Calculator struct {
	fraction    float64
	maxStakePct float64
	minEV       float64
}

// NewCalculator creates a calculator.
func NewCalculator(config *Config) *Calculator {
	if config == nil {
		config = DefaultConfig()
	}

	defaults := DefaultConfig()
	if !finite(config.Fraction) || config.Fraction <= 0 || config.Fraction > 1 {
		config.Fraction = defaults.Fraction
	}
	if !finite(config.MaxStakePct) || config.MaxStakePct <= 0 {
		config.MaxStakePct = defaults.MaxStakePct
	}
	// MinEV can be 0 intentionally, so only NaN is defaulted
	if math.IsNaN(config.MinEV) {
		config.MinEV = defaults.MinEV
	}

	return &Calculator{
		fraction:    config.Fraction,
		maxStakePct: config.MaxStakePct,
		minEV:       config.MinEV,
	}
}

// Option adjusts a single calculation.
type Option func(*calcOptions)

type calcOptions struct {
	fraction bool
	cap      bool
}

// WithoutFraction sizes at full Kelly.
func WithoutFraction() Option { return func(o *calcOptions) { o.fraction = false } }

// WithoutCap skips the max-stake ceiling.
func WithoutCap() Option { return func(o *calcOptions) { o.cap = false } }

// Calculate returns the recommendation for a model probability and decimal
// odds. Out-of-domain inputs produce a zero-stake, non-value recommendation.
func (c *Calculator) Calculate(modelProb, odds float64, opts ...Option) Recommendation {
	o := calcOptions{fraction: true, cap: true}
	for _, opt := range opts {
		opt(&o)
	}

	full := FullKelly(modelProb, odds) * 100

	fractional := full
	if o.fraction {
		fractional = full * c.fraction
	}

	stake := fractional
	if o.cap && stake > c.maxStakePct {
		stake = c.maxStakePct
	}

	ev := EV(modelProb, odds)
	return Recommendation{
		ModelProb:        modelProb,
		Odds:             odds,
		EV:               ev,
		FullKelly:        full,
		FractionalKelly:  fractional,
		RecommendedStake: stake,
		IsValueBet:       ev >= c.minEV && stake > 0,
		RiskLevel:        RiskLevelFor(stake),
	}
}

// StakeAmount converts the recommended stake into currency.
func (c *Calculator) StakeAmount(modelProb, odds float64, bankroll decimal.Decimal) decimal.Decimal {
	if !bankroll.IsPositive() {
		return decimal.Zero
	}
	rec := c.Calculate(modelProb, odds)
	return Amount(rec, bankroll)
}

// Amount converts a recommendation's stake percentage into currency,
// rounded to cents.
func Amount(rec Recommendation, bankroll decimal.Decimal) decimal.Decimal {
	if !bankroll.IsPositive() || !finite(rec.RecommendedStake) || rec.RecommendedStake <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromFloat(rec.RecommendedStake)
	return bankroll.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}

// Validate reports why an input pair is out of domain, or nil.
func Validate(modelProb, odds float64) error {
	if math.IsNaN(modelProb) || modelProb <= 0 || modelProb >= 1 {
		return core.InvalidInput("probability %v outside (0,1)", modelProb)
	}
	if !finite(odds) || odds <= 1 {
		return core.InvalidInput("decimal odds %v must exceed 1.0", odds)
	}
	return nil
}

// EV is the expected profit per unit staked: p*odds - 1. Out-of-domain
// inputs yield 0.
func EV(modelProb, odds float64) float64 {
	if math.IsNaN(modelProb) || modelProb < 0 || modelProb > 1 || !finite(odds) || odds <= 0 {
		return 0
	}
	return modelProb*odds - 1
}

// FullKelly returns f* = (p*b - q) / b as a fraction in [0,1], where b is
// the net decimal payout.
func FullKelly(modelProb, odds float64) float64 {
	if Validate(modelProb, odds) != nil {
		return 0
	}
	b := odds - 1
	q := 1 - modelProb
	f := (modelProb*b - q) / b
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// RiskLevelFor buckets a stake percentage.
func RiskLevelFor(stakePct float64) RiskLevel {
	switch {
	case stakePct < 1:
		return RiskLow
	case stakePct < 3:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ImpliedProbability is 1/odds, or 0 for non-positive odds.
func ImpliedProbability(odds float64) float64 {
	if !finite(odds) || odds <= 0 {
		return 0
	}
	return 1 / odds
}

// Edge is the model probability minus the market's implied probability.
func Edge(modelProb, odds float64) float64 {
	return modelProb - ImpliedProbability(odds)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func (r Recommendation) String() string {
	return fmt.Sprintf("p=%.3f odds=%.2f ev=%+.3f stake=%.2f%% (%s)", r.ModelProb, r.Odds, r.EV, r.RecommendedStake, r.RiskLevel)
}
