package engine

import (
	"fmt"
	"strings"
)

const (
	streakThreshold  = 3
	dominanceMatches = 3
	dominanceShare   = 0.6
	maxAIFactors     = 3
)

// KeyInsights summarizes the notable facts of an analysis: form streaks,
// head-to-head dominance and the leading contextual factors.
func KeyInsights(a *Analysis) []string {
	insights := []string{}

	for _, side := range []struct {
		team, form string
	}{
		{a.HomeTeam, a.HomeStats.Form},
		{a.AwayTeam, a.AwayStats.Form},
	} {
		if side.form == "" {
			continue
		}
		if strings.Count(side.form, "W") >= streakThreshold {
			insights = append(insights, fmt.Sprintf("%s in good form (%s)", side.team, side.form))
		}
		if strings.Count(side.form, "L") >= streakThreshold {
			insights = append(insights, fmt.Sprintf("%s in poor form (%s)", side.team, side.form))
		}
	}

	if h := a.H2H; h.Matches >= dominanceMatches && !h.Estimated {
		if share := float64(h.Team1Wins) / float64(h.Matches); share >= dominanceShare {
			insights = append(insights, fmt.Sprintf("%s dominate the head-to-head (%.0f%% wins)", a.HomeTeam, share*100))
		} else if share := float64(h.Team2Wins) / float64(h.Matches); share >= dominanceShare {
			insights = append(insights, fmt.Sprintf("%s dominate the head-to-head (%.0f%% wins)", a.AwayTeam, share*100))
		}
	}

	factors := a.Context.Consensus.KeyFactors
	if len(factors) > maxAIFactors {
		factors = factors[:maxAIFactors]
	}
	return append(insights, factors...)
}
