package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/pkg/football"
)

func intp(v int) *int { return &v }

// buildForm creates n matches alternating home and away, newest last.
func buildForm(t *testing.T, team string, n int, xgFor, xgAgainst float64, side football.SideStats, opp football.SideStats) football.TeamForm {
	t.Helper()
	matches := make([]football.MatchResult, 0, n)
	for i := 0; i < n; i++ {
		isHome := i%2 == 0
		m := football.MatchResult{
			Date:   time.Date(2025, 2, i+1, 15, 0, 0, 0, time.UTC),
			IsHome: isHome,
		}
		if isHome {
			m.HomeTeam, m.AwayTeam = team, "Opponent"
			m.HomeXG, m.AwayXG = xgFor, xgAgainst
			m.HomeGoals, m.AwayGoals = 2, 1
			m.Home, m.Away = side, opp
		} else {
			m.HomeTeam, m.AwayTeam = "Opponent", team
			m.HomeXG, m.AwayXG = xgAgainst, xgFor
			m.HomeGoals, m.AwayGoals = 1, 1
			m.Home, m.Away = opp, side
		}
		matches = append(matches, m)
	}
	form, err := football.NewTeamForm(team, matches)
	require.NoError(t, err)
	return form
}

func TestPredictorLambdas(t *testing.T) {
	home := buildForm(t, "Arsenal", 10, 1.8, 0.9, football.SideStats{}, football.SideStats{})
	away := buildForm(t, "Chelsea", 10, 1.4, 1.2, football.SideStats{}, football.SideStats{})

	p := NewPredictor(&Config{HomeAdvantage: 1.1})
	lh, la := p.Lambdas(home, away)

	// home: (1.8 + 1.2) / 2 * 1.1 = 1.65; away: (1.4 + 0.9) / 2 = 1.15
	assert.Equal(t, 1.65, lh)
	assert.Equal(t, 1.15, la)
}

func TestPredictFromLambdas(t *testing.T) {
	p := NewPredictor(nil)
	pred := p.PredictFromLambdas("Home", "Away", 1.5, 1.2)

	assert.InDelta(t, 1, pred.HomeWinProb+pred.DrawProb+pred.AwayWinProb, 1e-3)
	assert.Equal(t, 1, pred.MostLikelyScore.Home)
	assert.Equal(t, 1, pred.MostLikelyScore.Away)
	assert.Equal(t, 2.7, pred.ExpectedTotalGoals)
	assert.Equal(t, HomeWin, pred.Favorite())
	assert.Equal(t, pred.HomeWinProb, pred.Confidence())
	assert.Len(t, pred.TopScorelines, 5)
	assert.NotNil(t, pred.OverUnder25)
	assert.NotNil(t, pred.BTTS)

	bare := NewPredictor(&Config{SkipDetails: true}).PredictFromLambdas("Home", "Away", 1.5, 1.2)
	assert.Nil(t, bare.TopScorelines)
	assert.Nil(t, bare.BTTS)
}

func TestPredictionDeterministic(t *testing.T) {
	home := buildForm(t, "A", 6, 1.3, 1.1, football.SideStats{}, football.SideStats{})
	away := buildForm(t, "B", 6, 1.0, 1.4, football.SideStats{}, football.SideStats{})
	p := NewPredictor(nil)

	assert.Equal(t, p.Predict(home, away), p.Predict(home, away))
}

func TestAdjustProducesNewValue(t *testing.T) {
	p := NewPredictor(nil)
	base := p.PredictFromLambdas("Home", "Away", 1.5, 1.2)
	snapshot := base

	adj := p.Adjust(base, 1.1, 0.9)
	assert.Equal(t, 1.65, adj.HomeLambda)
	assert.Equal(t, 1.08, adj.AwayLambda)
	assert.Equal(t, snapshot, base, "Adjust modified its input")
	assert.Greater(t, adj.HomeWinProb, base.HomeWinProb, "boosting home raises home win probability")
}

func TestPredictFromStatsFallsBackToAggregates(t *testing.T) {
	p := NewPredictor(nil)
	home := football.TeamStats{Team: "H", MatchesPlayed: 10, GoalsFor: 20, GoalsAgainst: 10}
	away := football.TeamStats{Team: "A", MatchesPlayed: 10, GoalsFor: 10, GoalsAgainst: 14}

	pred := p.PredictFromStats(home, away)
	// home: (2.0 + 1.4) / 2 = 1.7; away: (1.0 + 1.0) / 2 = 1.0
	assert.Equal(t, 1.7, pred.HomeLambda)
	assert.Equal(t, 1.0, pred.AwayLambda)
}

func TestPredictCorners(t *testing.T) {
	home := buildForm(t, "Home", 10, 1.5, 1.3, football.SideStats{Corners: intp(6)}, football.SideStats{Corners: intp(4)})
	away := buildForm(t, "Away", 10, 1.2, 1.3, football.SideStats{Corners: intp(4)}, football.SideStats{Corners: intp(5)})

	m := NewMarketsPredictor(nil).PredictCorners(home, away)

	// xG conceded of 1.3 gives a defensive factor of exactly 1.2.
	require.NotNil(t, m.HomeExpected)
	require.NotNil(t, m.AwayExpected)
	assert.Equal(t, 7.2, *m.HomeExpected)
	assert.Equal(t, 4.8, *m.AwayExpected)
	assert.Equal(t, 12.0, m.TotalExpected)
	assert.Equal(t, QualityHigh, m.DataQuality)
	assert.Equal(t, 0.8, m.Confidence)

	require.Len(t, m.Lines, 6)
	for _, l := range m.Lines {
		assert.InDelta(t, 1, l.Over+l.Under, 1e-3, "line %v", l.Threshold)
	}
	l, ok := m.Line(10.5)
	require.True(t, ok)
	assert.GreaterOrEqual(t, l.Over, 0.5, "over 10.5 with lambda 12 is likely")

	sum := 0.0
	for _, p := range m.Distribution {
		assert.Greater(t, p, 0.001, "kept negligible probability")
		sum += p
	}
	assert.LessOrEqual(t, sum, 1+1e-3)
}

func TestPredictCardsRefereeFactor(t *testing.T) {
	home := buildForm(t, "Home", 4, 1, 1, football.SideStats{YellowCards: intp(2)}, football.SideStats{YellowCards: intp(1), RedCards: intp(1)})
	away := buildForm(t, "Away", 4, 1, 1, football.SideStats{YellowCards: intp(1)}, football.SideStats{YellowCards: intp(2)})

	mp := NewMarketsPredictor(nil)
	neutral := mp.PredictCards(home, away, 1.0)
	// home totals 2 + 1 + 2 = 5, away totals 3; combined 4.
	assert.Equal(t, 4.0, neutral.TotalExpected)

	strict := mp.PredictCards(home, away, 1.5)
	assert.Equal(t, 4.8, strict.TotalExpected, "referee factor clamped to 1.2")
	assert.Contains(t, strict.Reasoning, "Referee adjustment: 1.20x")
}

func TestMissingDataIsLowQuality(t *testing.T) {
	home := buildForm(t, "Home", 5, 1.5, 1.0, football.SideStats{}, football.SideStats{})
	away := buildForm(t, "Away", 5, 1.2, 1.1, football.SideStats{}, football.SideStats{})

	mp := NewMarketsPredictor(nil)
	shots := mp.PredictShots(home, away)
	assert.Equal(t, QualityLow, shots.DataQuality)
	assert.Equal(t, 0.28, shots.Confidence)

	off := mp.PredictOffsides(home, away)
	assert.Equal(t, 4.0, off.TotalExpected)
	assert.Equal(t, QualityLow, off.DataQuality)
	assert.Equal(t, 0.4, off.Confidence)

	all := mp.PredictAll(home, away)
	require.Len(t, all, 5)
	assert.Equal(t, MarketShotsOnTarget, all[3].Market)
}

func TestDispersionAnnotation(t *testing.T) {
	matches := []football.MatchResult{}
	counts := [][2]int{{1, 1}, {12, 10}, {2, 0}, {11, 9}}
	for i, c := range counts {
		matches = append(matches, football.MatchResult{
			Date: time.Date(2025, 3, i+1, 0, 0, 0, 0, time.UTC), HomeTeam: "Home", AwayTeam: "X", IsHome: true,
			Home: football.SideStats{Corners: intp(c[0])}, Away: football.SideStats{Corners: intp(c[1])},
		})
	}
	home, err := football.NewTeamForm("Home", matches)
	require.NoError(t, err)
	away := buildForm(t, "Away", 4, 1, 1, football.SideStats{Corners: intp(5)}, football.SideStats{Corners: intp(5)})

	m := NewMarketsPredictor(nil).PredictCorners(home, away)
	require.Greater(t, m.Dispersion, overDispersed)
	assert.Contains(t, m.Reasoning, "Over-dispersed")
}
