package stats

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/football"
)

const (
	// TheSportsDBBaseURL is the v1 JSON API root; the key is appended as a
	// path segment.
	TheSportsDBBaseURL = "https://www.thesportsdb.com/api/v1/json"
	// TheSportsDBFreeKey is the public key; no account is needed.
	TheSportsDBFreeKey = "3"
	// TheSportsDBName names the provider in chains and logs.
	TheSportsDBName = "thesportsdb"
)

// TheSportsDB is a client for TheSportsDB. Only recent results are
// offered, so team statistics cover the last few matches rather than a
// season.
type TheSportsDB struct {
	http *httpClient
	key  string

	mu  sync.Mutex
	ids map[string]int
}

// NewTheSportsDB creates a client. Pass TheSportsDBFreeKey to use the
// public tier, which allows roughly 30 requests per minute; an empty key
// disables the client.
func NewTheSportsDB(apiKey string, opts ...ClientOption) *TheSportsDB {
	return &TheSportsDB{
		http: newHTTPClient(TheSportsDBName, TheSportsDBBaseURL+"/"+apiKey, 0.5, 2, nil, opts),
		key:  apiKey,
		ids:  make(map[string]int),
	}
}

func (c *TheSportsDB) Name() string    { return TheSportsDBName }
func (c *TheSportsDB) Available() bool { return c != nil && c.key != "" }

type tsdbTeam struct {
	ID    string `json:"idTeam"`
	Name  string `json:"strTeam"`
	Sport string `json:"strSport"`
}

type tsdbEvent struct {
	Date       string  `json:"dateEvent"`
	HomeTeam   string  `json:"strHomeTeam"`
	AwayTeam   string  `json:"strAwayTeam"`
	HomeTeamID string  `json:"idHomeTeam"`
	AwayTeamID string  `json:"idAwayTeam"`
	HomeScore  *string `json:"intHomeScore"`
	AwayScore  *string `json:"intAwayScore"`
}

// score returns the full-time score, or false for unplayed events.
func (e tsdbEvent) score() (home, away int, ok bool) {
	if e.HomeScore == nil || e.AwayScore == nil {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(*e.HomeScore)
	a, err2 := strconv.Atoi(*e.AwayScore)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return h, a, true
}

// SearchTeam resolves a team name to its TheSportsDB id. Results are
// remembered for the life of the client.
func (c *TheSportsDB) SearchTeam(ctx context.Context, name string) (int, error) {
	key := football.NormalizeName(name)
	c.mu.Lock()
	id, ok := c.ids[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var out struct {
		Teams []tsdbTeam `json:"teams"`
	}
	if err := c.http.get(ctx, "/searchteams.php", url.Values{"t": {name}}, &out); err != nil {
		return 0, err
	}

	var pick *tsdbTeam
	for i := range out.Teams {
		t := &out.Teams[i]
		if !strings.EqualFold(t.Sport, "soccer") {
			continue
		}
		if football.SameTeam(t.Name, name) {
			pick = t
			break
		}
		if pick == nil {
			pick = t
		}
	}
	if pick == nil {
		return 0, core.BadResponse(c.Name(), fmt.Errorf("team %q not found", name))
	}
	id, err := strconv.Atoi(pick.ID)
	if err != nil {
		return 0, core.BadResponse(c.Name(), fmt.Errorf("team id %q: %w", pick.ID, err))
	}

	c.mu.Lock()
	c.ids[key] = id
	c.mu.Unlock()
	return id, nil
}

func (c *TheSportsDB) lastEvents(ctx context.Context, teamID int) ([]tsdbEvent, error) {
	var out struct {
		Results []tsdbEvent `json:"results"`
	}
	if err := c.http.get(ctx, "/eventslast.php", url.Values{"id": {strconv.Itoa(teamID)}}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// TeamStats aggregates the team's last finished matches.
func (c *TheSportsDB) TeamStats(ctx context.Context, req football.StatsRequest) (football.TeamStats, error) {
	teamID, err := c.SearchTeam(ctx, req.Team)
	if err != nil {
		return football.TeamStats{}, err
	}
	events, err := c.lastEvents(ctx, teamID)
	if err != nil {
		return football.TeamStats{}, err
	}

	id := strconv.Itoa(teamID)
	results := make([]football.MatchResult, 0, len(events))
	for _, e := range events {
		home, away, ok := e.score()
		if !ok {
			continue
		}
		date, _ := time.Parse("2006-01-02", e.Date)
		results = append(results, football.MatchResult{
			Date:      date,
			HomeTeam:  e.HomeTeam,
			AwayTeam:  e.AwayTeam,
			HomeGoals: home,
			AwayGoals: away,
			IsHome:    e.HomeTeamID == id,
		})
	}
	form, err := football.NewTeamForm(req.Team, results)
	if err != nil {
		return football.TeamStats{}, core.BadResponse(c.Name(), err)
	}
	return StatsFromForm(form, req, c.Name()), nil
}

// H2H picks the meetings with the away side out of the home side's last
// results. The window is short, so pairings that rarely meet come back
// empty.
func (c *TheSportsDB) H2H(ctx context.Context, req football.H2HRequest) (football.H2H, error) {
	homeID, err := c.SearchTeam(ctx, req.Home)
	if err != nil {
		return football.H2H{}, err
	}
	awayID, err := c.SearchTeam(ctx, req.Away)
	if err != nil {
		return football.H2H{}, err
	}
	events, err := c.lastEvents(ctx, homeID)
	if err != nil {
		return football.H2H{}, err
	}
	last := req.Last
	if last <= 0 {
		last = 10
	}

	hid, aid := strconv.Itoa(homeID), strconv.Itoa(awayID)
	h := football.H2H{Team1: req.Home, Team2: req.Away, Source: c.Name()}
	for _, e := range events {
		if h.Matches == last {
			break
		}
		home, away, ok := e.score()
		if !ok {
			continue
		}
		switch {
		case e.HomeTeamID == hid && e.AwayTeamID == aid:
			h = tally(h, home, away)
		case e.HomeTeamID == aid && e.AwayTeamID == hid:
			h = tally(h, away, home)
		}
	}
	return h, nil
}
