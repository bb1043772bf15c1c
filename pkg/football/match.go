// Package football holds the domain model shared by the stats providers
// and the predictors: per-match results, team form and season aggregates.
package football

import (
	"fmt"
	"time"

	"github.com/phenomenon0/bet-copilot/core"
)

// SideStats are the optional per-team counters of one match. A nil field
// means the provider did not report it, which is different from zero.
type SideStats struct {
	Corners       *int     `json:"corners,omitempty"`
	Shots         *int     `json:"shots,omitempty"`
	ShotsOnTarget *int     `json:"shots_on_target,omitempty"`
	Fouls         *int     `json:"fouls,omitempty"`
	YellowCards   *int     `json:"yellow_cards,omitempty"`
	RedCards      *int     `json:"red_cards,omitempty"`
	Offsides      *int     `json:"offsides,omitempty"`
	Possession    *float64 `json:"possession,omitempty"`
}

// Stat names a per-match counter.
type Stat int

const (
	StatCorners Stat = iota
	StatShots
	StatShotsOnTarget
	StatCards
	StatOffsides
	StatFouls
)

func (s Stat) String() string {
	switch s {
	case StatCorners:
		return "corners"
	case StatShots:
		return "shots"
	case StatShotsOnTarget:
		return "shots_on_target"
	case StatCards:
		return "cards"
	case StatOffsides:
		return "offsides"
	case StatFouls:
		return "fouls"
	default:
		return fmt.Sprintf("stat(%d)", int(s))
	}
}

// Value returns the counter and whether it was reported. Cards weigh a
// red as two.
func (s SideStats) Value(stat Stat) (float64, bool) {
	switch stat {
	case StatCorners:
		return deref(s.Corners)
	case StatShots:
		return deref(s.Shots)
	case StatShotsOnTarget:
		return deref(s.ShotsOnTarget)
	case StatOffsides:
		return deref(s.Offsides)
	case StatFouls:
		return deref(s.Fouls)
	case StatCards:
		if s.YellowCards == nil && s.RedCards == nil {
			return 0, false
		}
		y, _ := deref(s.YellowCards)
		r, _ := deref(s.RedCards)
		return y + 2*r, true
	default:
		return 0, false
	}
}

func deref(p *int) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return float64(*p), true
}

// MatchResult is one historical match seen from a team's perspective:
// IsHome says which side that team played.
type MatchResult struct {
	Date      time.Time `json:"date"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeGoals int       `json:"home_goals"`
	AwayGoals int       `json:"away_goals"`
	HomeXG    float64   `json:"home_xg"`
	AwayXG    float64   `json:"away_xg"`
	IsHome    bool      `json:"is_home"`
	Home      SideStats `json:"home_stats"`
	Away      SideStats `json:"away_stats"`
}

// Validate rejects negative goals or xG.
func (m MatchResult) Validate() error {
	if m.HomeGoals < 0 || m.AwayGoals < 0 {
		return core.InvalidInput("negative goals in %s v %s", m.HomeTeam, m.AwayTeam)
	}
	if m.HomeXG < 0 || m.AwayXG < 0 {
		return core.InvalidInput("negative xG in %s v %s", m.HomeTeam, m.AwayTeam)
	}
	return nil
}

// GoalsFor is the perspective team's goals.
func (m MatchResult) GoalsFor() int {
	if m.IsHome {
		return m.HomeGoals
	}
	return m.AwayGoals
}

// GoalsAgainst is the opponent's goals.
func (m MatchResult) GoalsAgainst() int {
	if m.IsHome {
		return m.AwayGoals
	}
	return m.HomeGoals
}

// XGFor is the perspective team's expected goals.
func (m MatchResult) XGFor() float64 {
	if m.IsHome {
		return m.HomeXG
	}
	return m.AwayXG
}

// XGAgainst is the opponent's expected goals.
func (m MatchResult) XGAgainst() float64 {
	if m.IsHome {
		return m.AwayXG
	}
	return m.HomeXG
}

// For returns the perspective team's counters.
func (m MatchResult) For() SideStats {
	if m.IsHome {
		return m.Home
	}
	return m.Away
}

// Against returns the opponent's counters.
func (m MatchResult) Against() SideStats {
	if m.IsHome {
		return m.Away
	}
	return m.Home
}

// Outcome is 'W', 'D' or 'L' for the perspective team.
func (m MatchResult) Outcome() byte {
	switch gf, ga := m.GoalsFor(), m.GoalsAgainst(); {
	case gf > ga:
		return 'W'
	case gf == ga:
		return 'D'
	default:
		return 'L'
	}
}
