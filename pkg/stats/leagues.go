package stats

import "github.com/phenomenon0/bet-copilot/pkg/football"

// League carries per-competition identifiers and scoring baselines.
type League struct {
	Name             string
	APIFootballID    int
	FootballDataCode string
	AvgGoals         float64
	HomeAdvantage    float64
}

var leagues = []League{
	{Name: "Premier League", APIFootballID: 39, FootballDataCode: "PL", AvgGoals: 2.8, HomeAdvantage: 1.15},
	{Name: "La Liga", APIFootballID: 140, FootballDataCode: "PD", AvgGoals: 2.6, HomeAdvantage: 1.12},
	{Name: "Serie A", APIFootballID: 135, FootballDataCode: "SA", AvgGoals: 2.5, HomeAdvantage: 1.10},
	{Name: "Bundesliga", APIFootballID: 78, FootballDataCode: "BL1", AvgGoals: 3.0, HomeAdvantage: 1.13},
	{Name: "Ligue 1", APIFootballID: 61, FootballDataCode: "FL1", AvgGoals: 2.7, HomeAdvantage: 1.11},
}

// DefaultLeague is used for unknown competitions.
var DefaultLeague = League{Name: "default", AvgGoals: 2.7, HomeAdvantage: 1.12}

// LookupLeague finds a league by name or API-Football id.
func LookupLeague(name string, id int) League {
	norm := football.NormalizeName(name)
	for _, l := range leagues {
		if (id != 0 && l.APIFootballID == id) || (norm != "" && football.NormalizeName(l.Name) == norm) {
			return l
		}
	}
	return DefaultLeague
}
