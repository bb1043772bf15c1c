// Package poisson provides the Poisson probability primitives and the
// independent-Poisson scoreline grid used by every count market.
package poisson

import (
	"math"
	"sort"
)

// DefaultMaxGoals bounds the scoreline grid per side.
const DefaultMaxGoals = 8

// DistributionFloor is the smallest probability kept by Distribution.
const DistributionFloor = 0.001

// Probability returns P(X = k) for X ~ Poisson(lambda). Negative k has
// probability 0; a non-positive lambda is a point mass at 0.
func Probability(k int, lambda float64) float64 {
	if k < 0 {
		return 0
	}
	if lambda <= 0 || math.IsNaN(lambda) {
		if k == 0 {
			return 1
		}
		return 0
	}
	if math.IsInf(lambda, 1) {
		return 0
	}
	// Log space keeps large k and lambda finite.
	lg, _ := math.Lgamma(float64(k) + 1)
	return math.Exp(float64(k)*math.Log(lambda) - lambda - lg)
}

// CumulativeProbability returns P(X <= k).
func CumulativeProbability(k int, lambda float64) float64 {
	if k < 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i <= k; i++ {
		sum += Probability(i, lambda)
	}
	if sum > 1 {
		return 1
	}
	return sum
}

// ProbabilityRange returns P(X = 0..maxK).
func ProbabilityRange(maxK int, lambda float64) []float64 {
	if maxK < 0 {
		return nil
	}
	out := make([]float64, maxK+1)
	for k := range out {
		out[k] = Probability(k, lambda)
	}
	return out
}

// Distribution returns P(X = k) for k in 0..maxValue, dropping entries at or
// below DistributionFloor.
func Distribution(lambda float64, maxValue int) map[int]float64 {
	out := make(map[int]float64)
	for k := 0; k <= maxValue; k++ {
		if p := Probability(k, lambda); p > DistributionFloor {
			out[k] = p
		}
	}
	return out
}

// OverUnder splits a total at a (typically half-integer) threshold. A total
// strictly above the threshold counts as over.
func OverUnder(lambda, threshold float64) Split {
	under := CumulativeProbability(int(math.Floor(threshold)), lambda)
	return Split{Over: 1 - under, Under: under}
}

// Split is a two-way probability.
type Split struct {
	Over  float64 `json:"over"`
	Under float64 `json:"under"`
}

// Outcome is a three-way match result probability.
type Outcome struct {
	HomeWin float64 `json:"home_win"`
	Draw    float64 `json:"draw"`
	AwayWin float64 `json:"away_win"`
}

// BTTS is the both-teams-to-score split.
type BTTS struct {
	Yes float64 `json:"yes"`
	No  float64 `json:"no"`
}

// Scoreline is one cell of the grid.
type Scoreline struct {
	Home        int     `json:"home"`
	Away        int     `json:"away"`
	Probability float64 `json:"probability"`
}

// Grid is the joint distribution of home and away goals under independence,
// truncated at MaxGoals per side. Aggregates are normalized by the grid's
// total mass so they sum to one regardless of truncation.
type Grid struct {
	MaxGoals   int
	LambdaHome float64
	LambdaAway float64

	cells [][]float64
	mass  float64
}

// NewGrid builds the grid. A non-positive maxGoals uses DefaultMaxGoals.
func NewGrid(lambdaHome, lambdaAway float64, maxGoals int) *Grid {
	if maxGoals <= 0 {
		maxGoals = DefaultMaxGoals
	}
	home := ProbabilityRange(maxGoals, lambdaHome)
	away := ProbabilityRange(maxGoals, lambdaAway)

	g := &Grid{
		MaxGoals:   maxGoals,
		LambdaHome: lambdaHome,
		LambdaAway: lambdaAway,
		cells:      make([][]float64, maxGoals+1),
	}
	for i := range g.cells {
		g.cells[i] = make([]float64, maxGoals+1)
		for j := range g.cells[i] {
			p := home[i] * away[j]
			g.cells[i][j] = p
			g.mass += p
		}
	}
	return g
}

// At returns P(home = i, away = j), or 0 outside the grid.
func (g *Grid) At(i, j int) float64 {
	if i < 0 || j < 0 || i > g.MaxGoals || j > g.MaxGoals {
		return 0
	}
	return g.cells[i][j]
}

// Mass is the probability captured by the truncated grid.
func (g *Grid) Mass() float64 { return g.mass }

// Outcome sums the grid into home win, draw and away win.
func (g *Grid) Outcome() Outcome {
	if g.mass <= 0 {
		return Outcome{HomeWin: 1.0 / 3, Draw: 1.0 / 3, AwayWin: 1.0 / 3}
	}
	var o Outcome
	for i, row := range g.cells {
		for j, p := range row {
			switch {
			case i > j:
				o.HomeWin += p
			case i == j:
				o.Draw += p
			default:
				o.AwayWin += p
			}
		}
	}
	o.HomeWin /= g.mass
	o.Draw /= g.mass
	o.AwayWin /= g.mass
	return o
}

// OverUnder returns the total-goals split at threshold.
func (g *Grid) OverUnder(threshold float64) Split {
	if g.mass <= 0 {
		return Split{Over: 0.5, Under: 0.5}
	}
	var over float64
	for i, row := range g.cells {
		for j, p := range row {
			if float64(i+j) > threshold {
				over += p
			}
		}
	}
	over /= g.mass
	return Split{Over: over, Under: 1 - over}
}

// BothTeamsToScore returns the BTTS split.
func (g *Grid) BothTeamsToScore() BTTS {
	if g.mass <= 0 {
		return BTTS{Yes: 0.5, No: 0.5}
	}
	var yes float64
	for i := 1; i <= g.MaxGoals; i++ {
		for j := 1; j <= g.MaxGoals; j++ {
			yes += g.cells[i][j]
		}
	}
	yes /= g.mass
	return BTTS{Yes: yes, No: 1 - yes}
}

// Scorelines returns every cell ordered by descending probability. Ties
// order by fewer total goals, then fewer home goals, so the order is stable.
func (g *Grid) Scorelines() []Scoreline {
	out := make([]Scoreline, 0, (g.MaxGoals+1)*(g.MaxGoals+1))
	for i, row := range g.cells {
		for j, p := range row {
			out = append(out, Scoreline{Home: i, Away: j, Probability: p})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Probability != out[b].Probability {
			return out[a].Probability > out[b].Probability
		}
		if ta, tb := out[a].Home+out[a].Away, out[b].Home+out[b].Away; ta != tb {
			return ta < tb
		}
		return out[a].Home < out[b].Home
	})
	return out
}

// MostLikely returns the top n scorelines.
func (g *Grid) MostLikely(n int) []Scoreline {
	all := g.Scorelines()
	if n < 0 {
		n = 0
	}
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// ExpectedTotal is the expected number of goals in the match.
func (g *Grid) ExpectedTotal() float64 {
	return g.LambdaHome + g.LambdaAway
}
