package stats

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/football"
)

const (
	// FootballDataBaseURL is the football-data.org v4 base URL.
	FootballDataBaseURL = "https://api.football-data.org/v4"
	// FootballDataName names the provider in chains and logs.
	FootballDataName = "football-data"
)

// footballDataIDs maps normalized names to football-data.org team ids. The
// free tier has no name search.
var footballDataIDs = map[string]int{
	"arsenal":                 57,
	"aston villa":             58,
	"bournemouth":             1044,
	"brentford":               402,
	"brighton hove albion":    397,
	"chelsea":                 61,
	"crystal palace":          354,
	"everton":                 62,
	"fulham":                  63,
	"liverpool":               64,
	"manchester city":         65,
	"manchester united":       66,
	"newcastle united":        67,
	"nottingham forest":       351,
	"southampton":             340,
	"tottenham hotspur":       73,
	"west ham united":         563,
	"wolverhampton wanderers": 76,
	"leicester city":          338,
	"leeds united":            341,
	"barcelona":               81,
	"real madrid":             86,
	"atletico madrid":         78,
	"bayern munchen":          5,
	"borussia dortmund":       4,
	"juventus":                109,
	"internazionale":          108,
	"milan":                   98,
	"paris saint germain":     524,
}

// FootballData is a football-data.org v4 client.
type FootballData struct {
	http  *httpClient
	key   string
	limit int
}

// NewFootballData creates a client. The free tier allows 10 requests per
// minute.
func NewFootballData(apiKey string, opts ...ClientOption) *FootballData {
	return &FootballData{
		http: newHTTPClient(FootballDataName, FootballDataBaseURL, 10.0/60.0, 2, map[string]string{
			"X-Auth-Token": apiKey,
		}, opts),
		key:   apiKey,
		limit: 20,
	}
}

func (c *FootballData) Name() string    { return FootballDataName }
func (c *FootballData) Available() bool { return c != nil && c.key != "" }

// TeamID resolves a team name through the static id table.
func (c *FootballData) TeamID(name string) (int, bool) {
	norm := football.NormalizeName(name)
	if id, ok := footballDataIDs[norm]; ok {
		return id, true
	}
	known := make([]string, 0, len(footballDataIDs))
	for k := range footballDataIDs {
		known = append(known, k)
	}
	sort.Strings(known)
	for _, k := range known {
		if football.MatchesQuery(k, norm) {
			return footballDataIDs[k], true
		}
	}
	return 0, false
}

type fdMatch struct {
	UTCDate  time.Time `json:"utcDate"`
	HomeTeam struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"homeTeam"`
	AwayTeam struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"awayTeam"`
	Score struct {
		FullTime struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		} `json:"fullTime"`
	} `json:"score"`
}

func (c *FootballData) matches(ctx context.Context, teamID, limit int) ([]fdMatch, error) {
	var out struct {
		Matches []fdMatch `json:"matches"`
	}
	params := url.Values{"status": {"FINISHED"}, "limit": {strconv.Itoa(limit)}}
	if err := c.http.get(ctx, fmt.Sprintf("/teams/%d/matches", teamID), params, &out); err != nil {
		return nil, err
	}
	finished := out.Matches[:0]
	for _, m := range out.Matches {
		if m.Score.FullTime.Home != nil && m.Score.FullTime.Away != nil {
			finished = append(finished, m)
		}
	}
	return finished, nil
}

func (c *FootballData) resolve(name string) (int, error) {
	id, ok := c.TeamID(name)
	if !ok {
		return 0, core.BadResponse(c.Name(), fmt.Errorf("team %q not in id table", name))
	}
	return id, nil
}

// TeamStats aggregates the team's recent finished matches.
func (c *FootballData) TeamStats(ctx context.Context, req football.StatsRequest) (football.TeamStats, error) {
	teamID, err := c.resolve(req.Team)
	if err != nil {
		return football.TeamStats{}, err
	}
	raw, err := c.matches(ctx, teamID, c.limit)
	if err != nil {
		return football.TeamStats{}, err
	}

	results := make([]football.MatchResult, 0, len(raw))
	for _, m := range raw {
		results = append(results, football.MatchResult{
			Date:      m.UTCDate,
			HomeTeam:  m.HomeTeam.Name,
			AwayTeam:  m.AwayTeam.Name,
			HomeGoals: *m.Score.FullTime.Home,
			AwayGoals: *m.Score.FullTime.Away,
			IsHome:    m.HomeTeam.ID == teamID,
		})
	}
	form, err := football.NewTeamForm(req.Team, results)
	if err != nil {
		return football.TeamStats{}, core.BadResponse(c.Name(), err)
	}
	return StatsFromForm(form, req, c.Name()), nil
}

// StatsFromForm derives season-style aggregates from match history.
func StatsFromForm(form football.TeamForm, req football.StatsRequest, source string) football.TeamStats {
	ts := football.TeamStats{
		TeamID:        req.TeamID,
		Team:          form.Team,
		League:        LookupLeague(req.League, req.LeagueID).Name,
		Season:        req.Season,
		MatchesPlayed: form.Len(),
		Form:          form.FormString(5),
		Source:        source,
	}
	for _, m := range form.Matches {
		ts.GoalsFor += m.GoalsFor()
		ts.GoalsAgainst += m.GoalsAgainst()
		switch m.Outcome() {
		case 'W':
			ts.Wins++
		case 'D':
			ts.Draws++
		default:
			ts.Losses++
		}
	}
	if form.Len() > 0 {
		ts.Recent = &form
	}
	return ts
}

// H2H filters the home side's recent matches down to meetings with the
// away side.
func (c *FootballData) H2H(ctx context.Context, req football.H2HRequest) (football.H2H, error) {
	homeID, err := c.resolve(req.Home)
	if err != nil {
		return football.H2H{}, err
	}
	awayID, err := c.resolve(req.Away)
	if err != nil {
		return football.H2H{}, err
	}
	last := req.Last
	if last <= 0 {
		last = 10
	}

	raw, err := c.matches(ctx, homeID, 50)
	if err != nil {
		return football.H2H{}, err
	}

	h := football.H2H{Team1: req.Home, Team2: req.Away, Source: c.Name()}
	for _, m := range raw {
		if h.Matches == last {
			break
		}
		home, away := *m.Score.FullTime.Home, *m.Score.FullTime.Away
		switch {
		case m.HomeTeam.ID == homeID && m.AwayTeam.ID == awayID:
			h = tally(h, home, away)
		case m.HomeTeam.ID == awayID && m.AwayTeam.ID == homeID:
			h = tally(h, away, home)
		}
	}
	return h, nil
}
