package kelly

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/core"
)

func TestCalculator_Calculate(t *testing.T) {
	calc := NewCalculator(nil)

	tests := []struct {
		name          string
		modelProb     float64
		odds          float64
		wantEV        float64
		wantFull      float64
		wantStake     float64
		wantValueBet  bool
		wantRiskLevel RiskLevel
	}{
		{
			name:          "clear value bet capped",
			modelProb:     0.60,
			odds:          2.0,
			wantEV:        0.20,
			wantFull:      20,
			wantStake:     5.0,
			wantValueBet:  true,
			wantRiskLevel: RiskHigh,
		},
		{
			name:          "fair price",
			modelProb:     0.50,
			odds:          2.0,
			wantEV:        0,
			wantFull:      0,
			wantStake:     0,
			wantValueBet:  false,
			wantRiskLevel: RiskLow,
		},
		{
			name:          "small edge below ev threshold",
			modelProb:     0.52,
			odds:          2.0,
			wantEV:        0.04,
			wantFull:      4,
			wantStake:     1,
			wantValueBet:  false,
			wantRiskLevel: RiskMedium,
		},
		{
			name:          "negative edge",
			modelProb:     0.30,
			odds:          2.5,
			wantEV:        -0.25,
			wantFull:      0,
			wantStake:     0,
			wantValueBet:  false,
			wantRiskLevel: RiskLow,
		},
		{
			name:          "odds at evens boundary",
			modelProb:     0.9,
			odds:          1.0,
			wantEV:        -0.1,
			wantFull:      0,
			wantStake:     0,
			wantValueBet:  false,
			wantRiskLevel: RiskLow,
		},
		{
			name:          "probability out of range",
			modelProb:     1.2,
			odds:          3.0,
			wantEV:        0,
			wantFull:      0,
			wantStake:     0,
			wantValueBet:  false,
			wantRiskLevel: RiskLow,
		},
		{
			name:          "infinite odds",
			modelProb:     0.5,
			odds:          math.Inf(1),
			wantEV:        0,
			wantFull:      0,
			wantStake:     0,
			wantValueBet:  false,
			wantRiskLevel: RiskLow,
		},
		{
			name:          "NaN odds",
			modelProb:     0.5,
			odds:          math.NaN(),
			wantEV:        0,
			wantFull:      0,
			wantStake:     0,
			wantValueBet:  false,
			wantRiskLevel: RiskLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := calc.Calculate(tt.modelProb, tt.odds)

			assert.InDelta(t, tt.wantEV, rec.EV, 1e-9, "EV")
			assert.InDelta(t, tt.wantFull, rec.FullKelly, 1e-9, "FullKelly")
			assert.InDelta(t, tt.wantStake, rec.RecommendedStake, 1e-9, "RecommendedStake")
			assert.Equal(t, tt.wantValueBet, rec.IsValueBet)
			assert.Equal(t, tt.wantRiskLevel, rec.RiskLevel)
		})
	}
}

func TestCalculator_FractionBeforeCap(t *testing.T) {
	calc := NewCalculator(&Config{Fraction: 0.25, MaxStakePct: 5.0, MinEV: 0.05})

	rec := calc.Calculate(0.6, 2.0)
	assert.InDelta(t, 5.0, rec.FractionalKelly, 1e-9)

	full := calc.Calculate(0.6, 2.0, WithoutFraction())
	assert.InDelta(t, 5.0, full.RecommendedStake, 1e-9, "full Kelly still hits the ceiling")

	raw := calc.Calculate(0.6, 2.0, WithoutFraction(), WithoutCap())
	assert.InDelta(t, 20, raw.RecommendedStake, 1e-9)
}

func TestNewCalculatorDefaultsNaN(t *testing.T) {
	calc := NewCalculator(&Config{Fraction: math.NaN(), MaxStakePct: math.NaN(), MinEV: math.NaN()})

	def := DefaultConfig()
	assert.Equal(t, def.Fraction, calc.fraction)
	assert.Equal(t, def.MaxStakePct, calc.maxStakePct)
	assert.Equal(t, def.MinEV, calc.minEV)

	rec := calc.Calculate(0.6, 2.0)
	assert.InDelta(t, 5.0, rec.RecommendedStake, 1e-9)
	assert.True(t, rec.IsValueBet)
}

func TestCalculator_StakeAmount(t *testing.T) {
	calc := NewCalculator(nil)

	got := calc.StakeAmount(0.6, 2.0, decimal.NewFromInt(1000))
	assert.True(t, got.Equal(decimal.NewFromInt(50)), "StakeAmount = %s", got)
	assert.True(t, calc.StakeAmount(0.6, 2.0, decimal.Zero).IsZero())
	assert.True(t, calc.StakeAmount(0.5, math.Inf(1), decimal.NewFromInt(1000)).IsZero())
}

func TestAmountNonFiniteStake(t *testing.T) {
	bankroll := decimal.NewFromInt(1000)
	for _, stake := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.NotPanics(t, func() {
			assert.True(t, Amount(Recommendation{RecommendedStake: stake}, bankroll).IsZero())
		})
	}
}

func TestFullKellyClamp(t *testing.T) {
	got := FullKelly(0.99, 1000)
	assert.Greater(t, got, 0.98)
	assert.LessOrEqual(t, got, 1.0)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(0.5, 2.0))

	inputs := [][2]float64{
		{0, 2}, {1, 2}, {0.5, 1}, {math.NaN(), 2},
		{0.5, math.NaN()}, {0.5, math.Inf(1)}, {0.5, math.Inf(-1)},
	}
	for _, in := range inputs {
		assert.ErrorIs(t, Validate(in[0], in[1]), core.ErrInvalidInput, "Validate(%v)", in)
	}
}

func TestImpliedProbabilityAndEdge(t *testing.T) {
	assert.Equal(t, 0.25, ImpliedProbability(4.0))
	assert.Zero(t, ImpliedProbability(0))
	assert.Zero(t, ImpliedProbability(math.Inf(1)))
	assert.InDelta(t, 0.05, Edge(0.55, 2.0), 1e-9)
}
