package poisson

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestProbability(t *testing.T) {
	tests := []struct {
		name   string
		k      int
		lambda float64
		want   float64
	}{
		{"zero goals 1.5", 0, 1.5, 0.2231},
		{"one goal 1.5", 1, 1.5, 0.3347},
		{"zero goals 1.2", 0, 1.2, 0.3012},
		{"one goal 1.2", 1, 1.2, 0.3614},
		{"point mass at zero", 0, 0, 1},
		{"no mass above zero", 3, 0, 0},
		{"negative lambda", 0, -1, 1},
		{"negative k", -1, 2.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Probability(tt.k, tt.lambda), 1e-4)
		})
	}
}

func TestProbabilityMatchesReference(t *testing.T) {
	for _, lambda := range []float64{0.3, 1.1, 2.7, 5.0, 11.5, 24.0} {
		ref := distuv.Poisson{Lambda: lambda}
		for k := 0; k <= 40; k++ {
			require.InDelta(t, ref.Prob(float64(k)), Probability(k, lambda), 1e-12, "Probability(%d, %v)", k, lambda)
		}
		assert.InDelta(t, ref.CDF(10), CumulativeProbability(10, lambda), 1e-9, "CumulativeProbability(10, %v)", lambda)
	}
}

func TestProbabilitiesSumToOne(t *testing.T) {
	for _, lambda := range []float64{0.1, 1, 2.5, 7, 12} {
		sum := 0.0
		for _, p := range ProbabilityRange(40, lambda) {
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-6, "lambda %v", lambda)
	}
}

func TestGridScenario(t *testing.T) {
	g := NewGrid(1.5, 1.2, 0)
	require.Equal(t, DefaultMaxGoals, g.MaxGoals)
	assert.InDelta(t, 0.1209, g.At(1, 1), 1e-3)
	assert.Zero(t, g.At(-1, 0))
	assert.Zero(t, g.At(0, 9))

	top := g.MostLikely(3)
	require.Len(t, top, 3)
	assert.Equal(t, 1, top[0].Home)
	assert.Equal(t, 1, top[0].Away)
	for i := 1; i < len(top); i++ {
		assert.LessOrEqual(t, top[i].Probability, top[i-1].Probability, "scorelines descending")
	}
	assert.InDelta(t, 2.7, g.ExpectedTotal(), 1e-12)
}

func TestGridOutcomeSumsToOne(t *testing.T) {
	pairs := [][2]float64{{0, 0}, {0.2, 3.1}, {1.5, 1.2}, {4.5, 4.5}, {9, 0.5}, {30, 30}}
	for _, p := range pairs {
		o := NewGrid(p[0], p[1], 8).Outcome()
		assert.InDelta(t, 1, o.HomeWin+o.Draw+o.AwayWin, 1e-3, "lambdas %v", p)
	}
}

func TestGridAggregates(t *testing.T) {
	g := NewGrid(1.5, 1.2, 8)
	o := g.Outcome()
	assert.Greater(t, o.HomeWin, o.AwayWin, "stronger home side is favourite")

	ou := g.OverUnder(2.5)
	assert.InDelta(t, 1, ou.Over+ou.Under, 1e-9)
	// Total goals is Poisson(2.7), so the grid should agree with the closed form.
	assert.InDelta(t, 1-CumulativeProbability(2, 2.7), ou.Over, 1e-3)

	btts := g.BothTeamsToScore()
	assert.InDelta(t, (1-math.Exp(-1.5))*(1-math.Exp(-1.2)), btts.Yes, 1e-3)
}

func TestGridDeterministic(t *testing.T) {
	a := NewGrid(1.37, 0.91, 8).Scorelines()
	b := NewGrid(1.37, 0.91, 8).Scorelines()
	assert.Equal(t, a, b)
}

func TestDistributionTruncates(t *testing.T) {
	d := Distribution(10.5, 25)
	sum := 0.0
	for k, p := range d {
		assert.Greater(t, p, DistributionFloor, "kept negligible value at %d", k)
		sum += p
	}
	assert.LessOrEqual(t, sum, 1.0)
	assert.NotContains(t, d, 0, "P(0; 10.5) should have been truncated")
}

func TestOverUnderLine(t *testing.T) {
	s := OverUnder(9.8, 9.5)
	assert.InDelta(t, CumulativeProbability(9, 9.8), s.Under, 1e-12)
	assert.InDelta(t, 1, s.Over+s.Under, 1e-12)
}
