package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/football"
)

const (
	// APIFootballBaseURL is the API-Football v3 base URL.
	APIFootballBaseURL = "https://v3.football.api-sports.io"
	// APIFootballName names the provider in chains and logs.
	APIFootballName = "api-football"
)

// APIFootball is an API-Football v3 client.
type APIFootball struct {
	http   *httpClient
	key    string
	season int
	recent int
}

// NewAPIFootball creates a client. season is used for requests that do
// not name one.
func NewAPIFootball(apiKey string, season int, opts ...ClientOption) *APIFootball {
	return &APIFootball{
		http: newHTTPClient(APIFootballName, APIFootballBaseURL, 5, 2, map[string]string{
			"x-apisports-key": apiKey,
		}, opts),
		key:    apiKey,
		season: season,
		recent: 10,
	}
}

func (c *APIFootball) Name() string    { return APIFootballName }
func (c *APIFootball) Available() bool { return c != nil && c.key != "" }

// envelope is the wrapper around every API-Football reply.
type envelope struct {
	Errors   json.RawMessage `json:"errors"`
	Response json.RawMessage `json:"response"`
}

func (e envelope) err() error {
	s := strings.TrimSpace(string(e.Errors))
	if s == "" || s == "[]" || s == "{}" || s == "null" {
		return nil
	}
	return fmt.Errorf("api returned errors: %s", s)
}

func (c *APIFootball) call(ctx context.Context, path string, params url.Values, out interface{}) error {
	var env envelope
	if err := c.http.get(ctx, path, params, &env); err != nil {
		return err
	}
	if err := env.err(); err != nil {
		return core.BadResponse(c.Name(), err)
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return core.BadResponse(c.Name(), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type afTeam struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type afFixture struct {
	Fixture struct {
		Date time.Time `json:"date"`
	} `json:"fixture"`
	Teams struct {
		Home afTeam `json:"home"`
		Away afTeam `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

func (f afFixture) finished() bool {
	return f.Goals.Home != nil && f.Goals.Away != nil
}

// SearchTeam resolves a team name to its API-Football id.
func (c *APIFootball) SearchTeam(ctx context.Context, name string) (int, error) {
	var out []struct {
		Team afTeam `json:"team"`
	}
	if err := c.call(ctx, "/teams", url.Values{"search": {name}}, &out); err != nil {
		return 0, err
	}
	for _, t := range out {
		if football.SameTeam(t.Team.Name, name) {
			return t.Team.ID, nil
		}
	}
	if len(out) > 0 {
		return out[0].Team.ID, nil
	}
	return 0, core.BadResponse(c.Name(), fmt.Errorf("team %q not found", name))
}

// TeamStats fetches season aggregates and attaches recent match history.
// A failed history fetch leaves Recent nil rather than failing the call.
func (c *APIFootball) TeamStats(ctx context.Context, req football.StatsRequest) (football.TeamStats, error) {
	teamID := req.TeamID
	if teamID == 0 {
		id, err := c.SearchTeam(ctx, req.Team)
		if err != nil {
			return football.TeamStats{}, err
		}
		teamID = id
	}
	league := LookupLeague(req.League, req.LeagueID)
	leagueID := req.LeagueID
	if leagueID == 0 {
		leagueID = league.APIFootballID
	}
	if leagueID == 0 {
		return football.TeamStats{}, core.InvalidInput("api-football needs a league for %s", req.Team)
	}
	season := req.Season
	if season == 0 {
		season = c.season
	}

	var out struct {
		Team     afTeam `json:"team"`
		Form     string `json:"form"`
		Fixtures struct {
			Played struct{ Total int } `json:"played"`
			Wins   struct{ Total int } `json:"wins"`
			Draws  struct{ Total int } `json:"draws"`
			Loses  struct{ Total int } `json:"loses"`
		} `json:"fixtures"`
		Goals struct {
			For struct {
				Total struct{ Total int } `json:"total"`
			} `json:"for"`
			Against struct {
				Total struct{ Total int } `json:"total"`
			} `json:"against"`
		} `json:"goals"`
	}
	params := url.Values{
		"team":   {strconv.Itoa(teamID)},
		"league": {strconv.Itoa(leagueID)},
		"season": {strconv.Itoa(season)},
	}
	if err := c.call(ctx, "/teams/statistics", params, &out); err != nil {
		return football.TeamStats{}, err
	}

	name := out.Team.Name
	if name == "" {
		name = req.Team
	}
	ts := football.TeamStats{
		TeamID:        teamID,
		Team:          name,
		League:        league.Name,
		Season:        season,
		MatchesPlayed: out.Fixtures.Played.Total,
		Wins:          out.Fixtures.Wins.Total,
		Draws:         out.Fixtures.Draws.Total,
		Losses:        out.Fixtures.Loses.Total,
		GoalsFor:      out.Goals.For.Total.Total,
		GoalsAgainst:  out.Goals.Against.Total.Total,
		Form:          latestForm(out.Form, 5),
		Source:        c.Name(),
	}

	if recent, err := c.RecentMatches(ctx, teamID, name, c.recent); err == nil && recent.Len() > 0 {
		ts.Recent = &recent
	}
	return ts, nil
}

// latestForm turns API-Football's oldest-first form string into the last
// n results, newest first.
func latestForm(form string, n int) string {
	form = strings.ToUpper(strings.TrimSpace(form))
	if len(form) > n {
		form = form[len(form)-n:]
	}
	b := []byte(form)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// RecentMatches returns the team's last finished fixtures.
func (c *APIFootball) RecentMatches(ctx context.Context, teamID int, team string, last int) (football.TeamForm, error) {
	var fixtures []afFixture
	params := url.Values{"team": {strconv.Itoa(teamID)}, "last": {strconv.Itoa(last)}}
	if err := c.call(ctx, "/fixtures", params, &fixtures); err != nil {
		return football.TeamForm{}, err
	}

	matches := make([]football.MatchResult, 0, len(fixtures))
	for _, f := range fixtures {
		if !f.finished() {
			continue
		}
		matches = append(matches, football.MatchResult{
			Date:      f.Fixture.Date,
			HomeTeam:  f.Teams.Home.Name,
			AwayTeam:  f.Teams.Away.Name,
			HomeGoals: *f.Goals.Home,
			AwayGoals: *f.Goals.Away,
			IsHome:    f.Teams.Home.ID == teamID,
		})
	}
	return football.NewTeamForm(team, matches)
}

// H2H fetches previous meetings. Results are from the request's home side
// perspective regardless of where each meeting was played.
func (c *APIFootball) H2H(ctx context.Context, req football.H2HRequest) (football.H2H, error) {
	homeID, awayID := req.HomeID, req.AwayID
	var err error
	if homeID == 0 {
		if homeID, err = c.SearchTeam(ctx, req.Home); err != nil {
			return football.H2H{}, err
		}
	}
	if awayID == 0 {
		if awayID, err = c.SearchTeam(ctx, req.Away); err != nil {
			return football.H2H{}, err
		}
	}
	last := req.Last
	if last <= 0 {
		last = 10
	}

	var fixtures []afFixture
	params := url.Values{
		"h2h":  {fmt.Sprintf("%d-%d", homeID, awayID)},
		"last": {strconv.Itoa(last)},
	}
	if err := c.call(ctx, "/fixtures/headtohead", params, &fixtures); err != nil {
		return football.H2H{}, err
	}

	h := football.H2H{Team1: req.Home, Team2: req.Away, Source: c.Name()}
	for _, f := range fixtures {
		if !f.finished() {
			continue
		}
		team1Goals, team2Goals := *f.Goals.Home, *f.Goals.Away
		if f.Teams.Home.ID != homeID {
			team1Goals, team2Goals = team2Goals, team1Goals
		}
		h = tally(h, team1Goals, team2Goals)
	}
	return h, nil
}

// tally adds one meeting to h.
func tally(h football.H2H, team1Goals, team2Goals int) football.H2H {
	h.Matches++
	h.Results = append(append([]string(nil), h.Results...), resultToken(team1Goals, team2Goals))
	switch {
	case team1Goals > team2Goals:
		h.Team1Wins++
	case team1Goals < team2Goals:
		h.Team2Wins++
	default:
		h.Draws++
	}
	return h
}

func resultToken(team1Goals, team2Goals int) string {
	switch {
	case team1Goals > team2Goals:
		return "H"
	case team1Goals < team2Goals:
		return "A"
	default:
		return "D"
	}
}
