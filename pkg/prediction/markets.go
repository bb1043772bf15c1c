package prediction

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/stat"

	"github.com/phenomenon0/bet-copilot/pkg/football"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/poisson"
)

// Market is an alternative count market.
type Market string

const (
	MarketCorners       Market = "corners"
	MarketCards         Market = "cards"
	MarketShots         Market = "shots"
	MarketShotsOnTarget Market = "shots_on_target"
	MarketOffsides      Market = "offsides"
)

// Quality grades the data behind a market prediction.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// Line is the over/under split at one threshold.
type Line struct {
	Threshold float64 `json:"threshold"`
	Over      float64 `json:"over"`
	Under     float64 `json:"under"`
}

// MarketPrediction is the model's view of one count market.
type MarketPrediction struct {
	Market        Market          `json:"market"`
	HomeTeam      string          `json:"home_team"`
	AwayTeam      string          `json:"away_team"`
	TotalExpected float64         `json:"total_expected"`
	HomeExpected  *float64        `json:"home_expected,omitempty"`
	AwayExpected  *float64        `json:"away_expected,omitempty"`
	Lines         []Line          `json:"over_under"`
	Distribution  map[int]float64 `json:"distribution"`
	Confidence    float64         `json:"confidence"`
	DataQuality   Quality         `json:"data_quality"`
	Dispersion    float64         `json:"dispersion,omitempty"`
	Reasoning     string          `json:"reasoning"`
}

// Line returns the split at threshold.
func (m MarketPrediction) Line(threshold float64) (Line, bool) {
	for _, l := range m.Lines {
		if l.Threshold == threshold {
			return l, true
		}
	}
	return Line{}, false
}

type marketSpec struct {
	thresholds []float64
	maxValue   int
}

var marketSpecs = map[Market]marketSpec{
	MarketCorners:       {[]float64{7.5, 8.5, 9.5, 10.5, 11.5, 12.5}, 25},
	MarketCards:         {[]float64{2.5, 3.5, 4.5, 5.5, 6.5}, 15},
	MarketShots:         {[]float64{18.5, 20.5, 22.5, 24.5, 26.5}, 50},
	MarketShotsOnTarget: {[]float64{8.5, 9.5, 10.5, 11.5, 12.5}, 30},
	MarketOffsides:      {[]float64{3.5, 4.5, 5.5, 6.5}, 15},
}

const (
	// defaultOffsides stands in for a side with no offside data.
	defaultOffsides = 2.0
	// leagueXGAgainst is the typical xG conceded per match.
	leagueXGAgainst = 1.3
	// overDispersed flags samples whose variance clearly exceeds the mean.
	overDispersed = 1.5
)

// MarketsConfig configures a MarketsPredictor.
type MarketsConfig struct {
	MatchesToConsider int // Default: 5
	Logger            *log.Logger
}

// MarketsPredictor predicts corners, cards, shots, shots on target and
// offsides from recent per-match counters.
type MarketsPredictor struct {
	matches int
	logger  *log.Logger
}

// NewMarketsPredictor creates a predictor.
func NewMarketsPredictor(config *MarketsConfig) *MarketsPredictor {
	if config == nil {
		config = &MarketsConfig{}
	}
	if config.MatchesToConsider <= 0 {
		config.MatchesToConsider = 5
	}
	return &MarketsPredictor{
		matches: config.MatchesToConsider,
		logger:  logging.Component(config.Logger, "markets"),
	}
}

// PredictAll runs every market with a neutral referee.
func (p *MarketsPredictor) PredictAll(home, away football.TeamForm) []MarketPrediction {
	return []MarketPrediction{
		p.PredictCorners(home, away),
		p.PredictCards(home, away, 1.0),
		p.PredictShots(home, away),
		p.PredictShotsOnTarget(home, away),
		p.PredictOffsides(home, away),
	}
}

// PredictCorners scales each side's corners won by the opponent's
// defensive factor.
func (p *MarketsPredictor) PredictCorners(home, away football.TeamForm) MarketPrediction {
	return p.attackingVolume(MarketCorners, football.StatCorners, home, away)
}

// PredictShots works like PredictCorners on total shots.
func (p *MarketsPredictor) PredictShots(home, away football.TeamForm) MarketPrediction {
	return p.attackingVolume(MarketShots, football.StatShots, home, away)
}

// PredictShotsOnTarget works like PredictCorners on shots on target.
func (p *MarketsPredictor) PredictShotsOnTarget(home, away football.TeamForm) MarketPrediction {
	return p.attackingVolume(MarketShotsOnTarget, football.StatShotsOnTarget, home, away)
}

func (p *MarketsPredictor) attackingVolume(market Market, st football.Stat, home, away football.TeamForm) MarketPrediction {
	homeAvg := home.AvgFor(p.matches, football.HomeOnly, st)
	awayAvg := away.AvgFor(p.matches, football.AwayOnly, st)

	homeFactor := p.defensiveFactor(home, football.HomeOnly)
	awayFactor := p.defensiveFactor(away, football.AwayOnly)

	homeExp := football.Round2(homeAvg * awayFactor)
	awayExp := football.Round2(awayAvg * homeFactor)
	total := football.Round2(homeExp + awayExp)

	quality := qualityFor(
		home.Coverage(p.matches, football.HomeOnly, st),
		away.Coverage(p.matches, football.AwayOnly, st),
	)

	reasoning := fmt.Sprintf("Based on %d recent matches. Home avg: %.1f, Away avg: %.1f", p.matches, homeAvg, awayAvg)
	if homeFactor != 1 || awayFactor != 1 {
		reasoning += fmt.Sprintf(". Defensive factors: home %.2f, away %.2f", homeFactor, awayFactor)
	}

	pred := p.build(market, home.Team, away.Team, total, quality, homeAvg, awayAvg, reasoning)
	pred.HomeExpected = &homeExp
	pred.AwayExpected = &awayExp
	p.annotateDispersion(&pred, home.MatchTotals(p.matches, football.AnyVenue, st), away.MatchTotals(p.matches, football.AnyVenue, st))
	return pred
}

// PredictCards averages both teams' per-match card totals (a red counts
// as two) and scales by the referee factor, clamped to [0.8, 1.2].
func (p *MarketsPredictor) PredictCards(home, away football.TeamForm, refereeFactor float64) MarketPrediction {
	if refereeFactor <= 0 {
		refereeFactor = 1
	}
	refereeFactor = clamp(refereeFactor, 0.8, 1.2)

	homeAvg := home.AvgMatchTotal(p.matches, football.AnyVenue, football.StatCards)
	awayAvg := away.AvgMatchTotal(p.matches, football.AnyVenue, football.StatCards)
	combined := (homeAvg + awayAvg) / 2
	total := football.Round2(combined * refereeFactor)

	quality := qualityFor(
		home.Coverage(p.matches, football.AnyVenue, football.StatCards),
		away.Coverage(p.matches, football.AnyVenue, football.StatCards),
	)

	reasoning := fmt.Sprintf("Based on %d recent matches. ", p.matches)
	if refereeFactor != 1 {
		reasoning += fmt.Sprintf("Referee adjustment: %.2fx. ", refereeFactor)
	}
	reasoning += fmt.Sprintf("Combined avg: %.1f", combined)

	pred := p.build(MarketCards, home.Team, away.Team, total, quality, homeAvg, awayAvg, reasoning)
	p.annotateDispersion(&pred, home.MatchTotals(p.matches, football.AnyVenue, football.StatCards), away.MatchTotals(p.matches, football.AnyVenue, football.StatCards))
	return pred
}

// PredictOffsides sums each side's offsides, standing in a league-typical
// value for a side without data.
func (p *MarketsPredictor) PredictOffsides(home, away football.TeamForm) MarketPrediction {
	homeSamples := home.Samples(p.matches, football.HomeOnly, football.StatOffsides)
	awaySamples := away.Samples(p.matches, football.AwayOnly, football.StatOffsides)

	homeAvg, awayAvg := defaultOffsides, defaultOffsides
	if len(homeSamples) > 0 {
		homeAvg = football.Mean(homeSamples)
	}
	if len(awaySamples) > 0 {
		awayAvg = football.Mean(awaySamples)
	}
	total := football.Round2(homeAvg + awayAvg)

	quality := qualityFor(
		home.Coverage(p.matches, football.HomeOnly, football.StatOffsides),
		away.Coverage(p.matches, football.AwayOnly, football.StatOffsides),
	)

	reasoning := fmt.Sprintf("Based on available data. Home avg: %.1f, Away avg: %.1f", homeAvg, awayAvg)
	if len(homeSamples) == 0 || len(awaySamples) == 0 {
		reasoning += fmt.Sprintf(". Missing sides use %.1f", defaultOffsides)
	}

	pred := p.build(MarketOffsides, home.Team, away.Team, total, quality, homeAvg, awayAvg, reasoning)
	pred.HomeExpected = &homeAvg
	pred.AwayExpected = &awayAvg
	return pred
}

func (p *MarketsPredictor) build(market Market, homeTeam, awayTeam string, total float64, quality Quality, homeAvg, awayAvg float64, reasoning string) MarketPrediction {
	spec := marketSpecs[market]

	lines := make([]Line, 0, len(spec.thresholds))
	for _, t := range spec.thresholds {
		s := poisson.OverUnder(total, t)
		lines = append(lines, Line{Threshold: t, Over: round4(s.Over), Under: round4(s.Under)})
	}

	dist := poisson.Distribution(total, spec.maxValue)
	for k, v := range dist {
		dist[k] = round4(v)
	}

	pred := MarketPrediction{
		Market:        market,
		HomeTeam:      homeTeam,
		AwayTeam:      awayTeam,
		TotalExpected: total,
		Lines:         lines,
		Distribution:  dist,
		Confidence:    confidenceFor(quality, homeAvg, awayAvg),
		DataQuality:   quality,
		Reasoning:     reasoning,
	}
	p.logger.Debug("market prediction", "market", market, "total", total, "quality", quality)
	return pred
}

// annotateDispersion records the variance-to-mean ratio of observed match
// totals. Poisson assumes a ratio of one; a much larger value means the
// tails are understated.
func (p *MarketsPredictor) annotateDispersion(pred *MarketPrediction, samples ...[]float64) {
	var all []float64
	for _, s := range samples {
		all = append(all, s...)
	}
	if len(all) < 3 {
		return
	}
	mean, variance := stat.MeanVariance(all, nil)
	if mean <= 0 {
		return
	}
	pred.Dispersion = football.Round2(variance / mean)
	if pred.Dispersion > overDispersed {
		pred.Reasoning = strings.TrimSuffix(pred.Reasoning, ".") +
			fmt.Sprintf(". Over-dispersed sample (index %.2f), tail lines may be understated", pred.Dispersion)
	}
}

// defensiveFactor maps a team's xG conceded to a multiplier on the
// opponent's attacking volume: deeper-defending sides concede more.
func (p *MarketsPredictor) defensiveFactor(f football.TeamForm, v football.Venue) float64 {
	xga := f.AvgXGAgainst(p.matches, v)
	if xga == 0 {
		return 1.0
	}
	return clamp(0.8+(xga/leagueXGAgainst)*0.4, 0.8, 1.2)
}

func qualityFor(homeCoverage, awayCoverage float64) Quality {
	switch avg := (homeCoverage + awayCoverage) / 2; {
	case avg >= 0.8:
		return QualityHigh
	case avg >= 0.5:
		return QualityMedium
	default:
		return QualityLow
	}
}

func confidenceFor(q Quality, homeAvg, awayAvg float64) float64 {
	base := map[Quality]float64{QualityHigh: 0.8, QualityMedium: 0.6, QualityLow: 0.4}[q]
	// A zero average usually means missing data rather than a true zero.
	if homeAvg == 0 || awayAvg == 0 {
		base *= 0.7
	}
	return football.Round2(base)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
