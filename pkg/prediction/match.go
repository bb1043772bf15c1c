// Package prediction turns team data into Poisson-based match and
// alternative-market predictions.
package prediction

import (
	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/pkg/football"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/poisson"
)

// Outcome is a 1X2 match result.
type Outcome string

const (
	HomeWin Outcome = "home_win"
	Draw    Outcome = "draw"
	AwayWin Outcome = "away_win"
)

// Outcomes lists the 1X2 results in display order.
var Outcomes = []Outcome{HomeWin, Draw, AwayWin}

// MatchPrediction is the model's view of one fixture. It is a plain value:
// adjusting it produces a new prediction.
type MatchPrediction struct {
	HomeTeam           string              `json:"home_team"`
	AwayTeam           string              `json:"away_team"`
	HomeLambda         float64             `json:"home_lambda"`
	AwayLambda         float64             `json:"away_lambda"`
	HomeWinProb        float64             `json:"home_win_prob"`
	DrawProb           float64             `json:"draw_prob"`
	AwayWinProb        float64             `json:"away_win_prob"`
	MostLikelyScore    poisson.Scoreline   `json:"most_likely_score"`
	ExpectedTotalGoals float64             `json:"expected_total_goals"`
	TopScorelines      []poisson.Scoreline `json:"top_scorelines,omitempty"`
	OverUnder25        *poisson.Split      `json:"over_under_2_5,omitempty"`
	BTTS               *poisson.BTTS       `json:"btts,omitempty"`
}

// Probability returns the model probability of an outcome.
func (p MatchPrediction) Probability(o Outcome) float64 {
	switch o {
	case HomeWin:
		return p.HomeWinProb
	case Draw:
		return p.DrawProb
	case AwayWin:
		return p.AwayWinProb
	default:
		return 0
	}
}

// Favorite is the most probable outcome. Ties go to the earlier outcome in
// Outcomes.
func (p MatchPrediction) Favorite() Outcome {
	best := HomeWin
	for _, o := range Outcomes[1:] {
		if p.Probability(o) > p.Probability(best) {
			best = o
		}
	}
	return best
}

// Confidence is the favourite's probability.
func (p MatchPrediction) Confidence() float64 {
	return p.Probability(p.Favorite())
}

// Config configures a Predictor.
type Config struct {
	MatchesToConsider int     // Default: 5
	HomeAdvantage     float64 // Default: 1.0 (multiplier on home lambda)
	MaxGoals          int     // Default: poisson.DefaultMaxGoals
	TopScorelines     int     // Default: 5
	SkipDetails       bool    // omit top scorelines, over/under and BTTS
	Logger            *log.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		MatchesToConsider: 5,
		HomeAdvantage:     1.0,
		MaxGoals:          poisson.DefaultMaxGoals,
		TopScorelines:     5,
	}
}

// Predictor derives goal rates and builds MatchPredictions. It holds no
// mutable state, so identical inputs give identical outputs.
type Predictor struct {
	matches       int
	homeAdvantage float64
	maxGoals      int
	topN          int
	details       bool
	logger        *log.Logger
}

// NewPredictor creates a predictor.
func NewPredictor(config *Config) *Predictor {
	if config == nil {
		config = DefaultConfig()
	}

	defaults := DefaultConfig()
	if config.MatchesToConsider <= 0 {
		config.MatchesToConsider = defaults.MatchesToConsider
	}
	if config.HomeAdvantage <= 0 {
		config.HomeAdvantage = defaults.HomeAdvantage
	}
	if config.MaxGoals <= 0 {
		config.MaxGoals = defaults.MaxGoals
	}
	if config.TopScorelines <= 0 {
		config.TopScorelines = defaults.TopScorelines
	}

	return &Predictor{
		matches:       config.MatchesToConsider,
		homeAdvantage: config.HomeAdvantage,
		maxGoals:      config.MaxGoals,
		topN:          config.TopScorelines,
		details:       !config.SkipDetails,
		logger:        logging.Component(config.Logger, "predictor"),
	}
}

// Lambdas derives expected goals from recent form:
//
//	home = (home attack at home + away defence away) / 2 * home advantage
//	away = (away attack away + home defence at home) / 2
//
// xG is preferred; a side with no xG recorded falls back to goals.
func (p *Predictor) Lambdas(home, away football.TeamForm) (float64, float64) {
	homeAttack := attack(home, p.matches, football.HomeOnly)
	homeDefence := defence(home, p.matches, football.HomeOnly)
	awayAttack := attack(away, p.matches, football.AwayOnly)
	awayDefence := defence(away, p.matches, football.AwayOnly)

	lh := football.Round2((homeAttack + awayDefence) / 2 * p.homeAdvantage)
	la := football.Round2((awayAttack + homeDefence) / 2)
	return lh, la
}

func attack(f football.TeamForm, n int, v football.Venue) float64 {
	if xg := f.AvgXGFor(n, v); xg > 0 {
		return xg
	}
	return f.AvgGoalsFor(n, v)
}

func defence(f football.TeamForm, n int, v football.Venue) float64 {
	if xg := f.AvgXGAgainst(n, v); xg > 0 {
		return xg
	}
	return f.AvgGoalsAgainst(n, v)
}

// StatsLambdas derives expected goals from season aggregates with the same
// attack/defence blend as Lambdas.
func (p *Predictor) StatsLambdas(home, away football.TeamStats) (float64, float64) {
	lh := football.Round2((home.AvgGoalsFor() + away.AvgGoalsAgainst()) / 2 * p.homeAdvantage)
	la := football.Round2((away.AvgGoalsFor() + home.AvgGoalsAgainst()) / 2)
	return lh, la
}

// Predict builds a prediction from recent form.
func (p *Predictor) Predict(home, away football.TeamForm) MatchPrediction {
	lh, la := p.Lambdas(home, away)
	return p.PredictFromLambdas(home.Team, away.Team, lh, la)
}

// PredictFromStats builds a prediction, preferring per-match history when
// both teams carry it and season aggregates otherwise.
func (p *Predictor) PredictFromStats(home, away football.TeamStats) MatchPrediction {
	if home.HasHistory() && away.HasHistory() {
		pred := p.Predict(*home.Recent, *away.Recent)
		if pred.HomeLambda > 0 || pred.AwayLambda > 0 {
			pred.HomeTeam, pred.AwayTeam = home.Team, away.Team
			return pred
		}
	}
	lh, la := p.StatsLambdas(home, away)
	return p.PredictFromLambdas(home.Team, away.Team, lh, la)
}

// PredictFromLambdas builds a prediction from goal rates directly.
func (p *Predictor) PredictFromLambdas(homeTeam, awayTeam string, lambdaHome, lambdaAway float64) MatchPrediction {
	if lambdaHome < 0 {
		lambdaHome = 0
	}
	if lambdaAway < 0 {
		lambdaAway = 0
	}

	grid := poisson.NewGrid(lambdaHome, lambdaAway, p.maxGoals)
	outcome := grid.Outcome()

	pred := MatchPrediction{
		HomeTeam:           homeTeam,
		AwayTeam:           awayTeam,
		HomeLambda:         lambdaHome,
		AwayLambda:         lambdaAway,
		HomeWinProb:        outcome.HomeWin,
		DrawProb:           outcome.Draw,
		AwayWinProb:        outcome.AwayWin,
		MostLikelyScore:    grid.MostLikely(1)[0],
		ExpectedTotalGoals: football.Round2(grid.ExpectedTotal()),
	}

	if p.details {
		pred.TopScorelines = grid.MostLikely(p.topN)
		ou := grid.OverUnder(2.5)
		btts := grid.BothTeamsToScore()
		pred.OverUnder25 = &ou
		pred.BTTS = &btts
	}

	p.logger.Debug("prediction", "home", homeTeam, "away", awayTeam,
		"lambda_home", lambdaHome, "lambda_away", lambdaAway, "favorite", pred.Favorite())
	return pred
}

// Adjust re-derives a prediction with both goal rates scaled. The input is
// not modified.
func (p *Predictor) Adjust(pred MatchPrediction, homeFactor, awayFactor float64) MatchPrediction {
	lh := football.Round2(pred.HomeLambda * homeFactor)
	la := football.Round2(pred.AwayLambda * awayFactor)
	return p.PredictFromLambdas(pred.HomeTeam, pred.AwayTeam, lh, la)
}
