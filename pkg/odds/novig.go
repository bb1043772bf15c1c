package odds

import (
	"math"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/prediction"
)

// DefaultMargin is the bookmaker margin assumed when synthesizing odds.
const DefaultMargin = 0.08

// ImpliedProbabilities converts decimal odds to raw implied probabilities.
func ImpliedProbabilities(odds ...float64) ([]float64, error) {
	out := make([]float64, len(odds))
	for i, o := range odds {
		if o <= 1 || math.IsNaN(o) || math.IsInf(o, 0) {
			return nil, core.InvalidInput("odds must be > 1, got %v", o)
		}
		out[i] = 1 / o
	}
	return out, nil
}

// RemoveVigMultiplicative normalizes a two-way market so both sides sum to
// one.
func RemoveVigMultiplicative(prob1, prob2 float64) (float64, float64, error) {
	if prob1 <= 0 || prob1 >= 1 || prob2 <= 0 || prob2 >= 1 {
		return 0, 0, core.InvalidInput("probabilities must be between 0 and 1")
	}
	total := prob1 + prob2
	if total <= 1 {
		return 0, 0, core.InvalidInput("no vig: probabilities sum to %.4f", total)
	}
	return prob1 / total, prob2 / total, nil
}

// RemoveVigProportional normalizes any number of outcomes proportionally to
// their implied probability.
func RemoveVigProportional(probs []float64) ([]float64, error) {
	if len(probs) < 2 {
		return nil, core.InvalidInput("need at least 2 outcomes")
	}
	total := 0.0
	for _, p := range probs {
		if p <= 0 || p >= 1 {
			return nil, core.InvalidInput("probabilities must be between 0 and 1")
		}
		total += p
	}
	if total <= 1 {
		return nil, core.InvalidInput("no vig: probabilities sum to %.4f", total)
	}
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = p / total
	}
	return out, nil
}

// NoVig holds the market's fair 1X2 probabilities.
type NoVig struct {
	Home      float64 `json:"home"`
	Draw      float64 `json:"draw"`
	Away      float64 `json:"away"`
	Overround float64 `json:"overround"`
}

// NoVigProbabilities strips the margin from complete 1X2 odds.
func NoVigProbabilities(m MatchOdds) (NoVig, error) {
	if !m.Complete() {
		return NoVig{}, core.InvalidInput("1X2 odds incomplete")
	}
	implied, err := ImpliedProbabilities(m.Home.Odds, m.Draw.Odds, m.Away.Odds)
	if err != nil {
		return NoVig{}, err
	}
	fair, err := RemoveVigProportional(implied)
	if err != nil {
		return NoVig{}, err
	}
	return NoVig{Home: round4(fair[0]), Draw: round4(fair[1]), Away: round4(fair[2]), Overround: round4(m.Overround())}, nil
}

// MinOdds is the shortest price FairOdds quotes.
const MinOdds = 1.01

// FairOdds prices a probability with a bookmaker margin added:
// 1 / (p * (1 + margin)), never shorter than MinOdds. Impossible outcomes
// get 0.
func FairOdds(prob, margin float64) float64 {
	if prob <= 0 || prob > 1 || math.IsNaN(prob) {
		return 0
	}
	if margin < 0 || math.IsNaN(margin) {
		margin = 0
	}
	return math.Max(MinOdds, math.Round(1/(prob*(1+margin))*100)/100)
}

// SyntheticName labels odds produced by FairMatchOdds.
const SyntheticName = "synthetic"

// FairMatchOdds synthesizes 1X2 odds from a prediction.
func FairMatchOdds(pred prediction.MatchPrediction, margin float64) MatchOdds {
	price := func(o prediction.Outcome) Price {
		return Price{Odds: FairOdds(pred.Probability(o), margin), Bookmaker: SyntheticName}
	}
	return MatchOdds{
		Home:      price(prediction.HomeWin),
		Draw:      price(prediction.Draw),
		Away:      price(prediction.AwayWin),
		Source:    SyntheticName,
		Synthetic: true,
	}
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
