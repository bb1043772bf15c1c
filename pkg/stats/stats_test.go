package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/football"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fixtureJSON(date string, homeID int, home string, awayID int, away string, hg, ag int) map[string]interface{} {
	return map[string]interface{}{
		"fixture": map[string]interface{}{"date": date},
		"teams": map[string]interface{}{
			"home": map[string]interface{}{"id": homeID, "name": home},
			"away": map[string]interface{}{"id": awayID, "name": away},
		},
		"goals": map[string]interface{}{"home": hg, "away": ag},
	}
}

func newAPIFootballServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-apisports-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		switch r.URL.Path {
		case "/teams":
			writeJSON(w, map[string]interface{}{"errors": []string{}, "response": []interface{}{
				map[string]interface{}{"team": map[string]interface{}{"id": 42, "name": "Arsenal"}},
			}})
		case "/teams/statistics":
			assert.Equal(t, "39", q.Get("league"))
			assert.Equal(t, "2024", q.Get("season"))
			writeJSON(w, map[string]interface{}{"errors": map[string]string{}, "response": map[string]interface{}{
				"team": map[string]interface{}{"id": 42, "name": "Arsenal"},
				"form": "LLWWDWW",
				"fixtures": map[string]interface{}{
					"played": map[string]int{"total": 20},
					"wins":   map[string]int{"total": 12},
					"draws":  map[string]int{"total": 5},
					"loses":  map[string]int{"total": 3},
				},
				"goals": map[string]interface{}{
					"for":     map[string]interface{}{"total": map[string]int{"total": 38}},
					"against": map[string]interface{}{"total": map[string]int{"total": 17}},
				},
			}})
		case "/fixtures":
			writeJSON(w, map[string]interface{}{"errors": []string{}, "response": []interface{}{
				fixtureJSON("2025-03-01T15:00:00Z", 42, "Arsenal", 7, "Everton", 2, 0),
				fixtureJSON("2025-02-22T15:00:00Z", 9, "Chelsea", 42, "Arsenal", 1, 1),
			}})
		case "/fixtures/headtohead":
			assert.Equal(t, "42-40", q.Get("h2h"))
			writeJSON(w, map[string]interface{}{"errors": []string{}, "response": []interface{}{
				fixtureJSON("2024-12-01T15:00:00Z", 40, "Liverpool", 42, "Arsenal", 0, 2),
				fixtureJSON("2024-04-01T15:00:00Z", 42, "Arsenal", 40, "Liverpool", 1, 1),
				fixtureJSON("2023-10-01T15:00:00Z", 42, "Arsenal", 40, "Liverpool", 0, 3),
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestAPIFootballTeamStats(t *testing.T) {
	srv := newAPIFootballServer(t)
	defer srv.Close()

	c := NewAPIFootball("key", 2024, WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	ts, err := c.TeamStats(context.Background(), football.StatsRequest{Team: "Arsenal", League: "Premier League"})
	require.NoError(t, err)

	assert.Equal(t, 42, ts.TeamID)
	assert.Equal(t, 20, ts.MatchesPlayed)
	assert.Equal(t, 1.9, ts.AvgGoalsFor())
	assert.Equal(t, "WWDWW", ts.Form)
	require.True(t, ts.HasHistory())
	assert.Equal(t, "WD", ts.Recent.FormString(5))
	assert.True(t, ts.Recent.Matches[0].IsHome)
	assert.False(t, ts.Recent.Matches[1].IsHome)
}

func TestAPIFootballH2HPerspective(t *testing.T) {
	srv := newAPIFootballServer(t)
	defer srv.Close()

	c := NewAPIFootball("key", 2024, WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	h, err := c.H2H(context.Background(), football.H2HRequest{Home: "Arsenal", Away: "Liverpool", HomeID: 42, AwayID: 40})
	require.NoError(t, err)

	assert.Equal(t, 3, h.Matches)
	assert.Equal(t, 1, h.Team1Wins)
	assert.Equal(t, 1, h.Draws)
	assert.Equal(t, 1, h.Team2Wins)
	assert.Equal(t, []string{"H", "D", "A"}, h.Results)
}

func TestAPIFootballErrorsAreClassified(t *testing.T) {
	srv := newAPIFootballServer(t)
	defer srv.Close()

	bad := NewAPIFootball("wrong", 2024, WithBaseURL(srv.URL))
	_, err := bad.SearchTeam(context.Background(), "Arsenal")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)

	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"errors": map[string]string{"requests": "limit reached"}, "response": []interface{}{}})
	}))
	defer errSrv.Close()
	limited := NewAPIFootball("key", 2024, WithBaseURL(errSrv.URL))
	_, err = limited.SearchTeam(context.Background(), "Arsenal")
	assert.ErrorIs(t, err, core.ErrProviderBadResponse)

	assert.False(t, NewAPIFootball("", 2024).Available())
}

func TestLatestForm(t *testing.T) {
	assert.Equal(t, "WWDWW", latestForm("llwwdww", 5))
	assert.Equal(t, "DW", latestForm("WD", 5))
	assert.Equal(t, "", latestForm("", 5))
}

func TestFootballDataTeamStatsAndH2H(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fd-key", r.Header.Get("X-Auth-Token"))
		assert.Equal(t, "/teams/57/matches", r.URL.Path)
		match := func(date string, homeID int, home string, awayID int, away string, hg, ag int) map[string]interface{} {
			return map[string]interface{}{
				"utcDate":  date,
				"homeTeam": map[string]interface{}{"id": homeID, "name": home},
				"awayTeam": map[string]interface{}{"id": awayID, "name": away},
				"score":    map[string]interface{}{"fullTime": map[string]int{"home": hg, "away": ag}},
			}
		}
		writeJSON(w, map[string]interface{}{"matches": []interface{}{
			match("2025-01-01T15:00:00Z", 57, "Arsenal FC", 64, "Liverpool FC", 2, 1),
			match("2025-01-08T15:00:00Z", 61, "Chelsea FC", 57, "Arsenal FC", 0, 0),
			match("2025-01-15T15:00:00Z", 64, "Liverpool FC", 57, "Arsenal FC", 3, 1),
		}})
	}))
	defer srv.Close()

	c := NewFootballData("fd-key", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	ctx := context.Background()

	ts, err := c.TeamStats(ctx, football.StatsRequest{Team: "Arsenal"})
	require.NoError(t, err)
	assert.Equal(t, 3, ts.MatchesPlayed)
	assert.Equal(t, 1, ts.Wins)
	assert.Equal(t, 1, ts.Draws)
	assert.Equal(t, 1, ts.Losses)
	assert.Equal(t, 3, ts.GoalsFor)
	assert.Equal(t, 4, ts.GoalsAgainst)
	assert.Equal(t, "LDW", ts.Form)

	h, err := c.H2H(ctx, football.H2HRequest{Home: "Arsenal", Away: "Liverpool"})
	require.NoError(t, err)
	assert.Equal(t, 2, h.Matches)
	assert.Equal(t, 1, h.Team1Wins)
	assert.Equal(t, 1, h.Team2Wins)

	_, err = c.TeamStats(ctx, football.StatsRequest{Team: "Unknown Town"})
	assert.ErrorIs(t, err, core.ErrProviderBadResponse)
}

func newTheSportsDBServer(t *testing.T, searches *int32) *httptest.Server {
	t.Helper()
	event := func(date, homeID, home, awayID, away string, hg, ag interface{}) map[string]interface{} {
		return map[string]interface{}{
			"dateEvent": date, "strHomeTeam": home, "strAwayTeam": away,
			"idHomeTeam": homeID, "idAwayTeam": awayID,
			"intHomeScore": hg, "intAwayScore": ag,
		}
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/searchteams.php":
			atomic.AddInt32(searches, 1)
			switch r.URL.Query().Get("t") {
			case "Arsenal":
				writeJSON(w, map[string]interface{}{"teams": []interface{}{
					map[string]string{"idTeam": "999", "strTeam": "Arsenal Tula", "strSport": "Soccer"},
					map[string]string{"idTeam": "133604", "strTeam": "Arsenal", "strSport": "Soccer"},
				}})
			case "Chelsea":
				writeJSON(w, map[string]interface{}{"teams": []interface{}{
					map[string]string{"idTeam": "133610", "strTeam": "Chelsea", "strSport": "Soccer"},
				}})
			default:
				writeJSON(w, map[string]interface{}{"teams": nil})
			}
		case "/eventslast.php":
			assert.Equal(t, "133604", r.URL.Query().Get("id"))
			writeJSON(w, map[string]interface{}{"results": []interface{}{
				event("2025-02-22", "133604", "Arsenal", "133610", "Chelsea", "2", "0"),
				event("2025-02-15", "133599", "Everton", "133604", "Arsenal", "1", "1"),
				event("2025-02-08", "133610", "Chelsea", "133604", "Arsenal", "3", "1"),
				event("2025-02-01", "133604", "Arsenal", "133602", "Fulham", nil, nil),
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestTheSportsDBTeamStatsAndH2H(t *testing.T) {
	var searches int32
	srv := newTheSportsDBServer(t, &searches)
	defer srv.Close()

	c := NewTheSportsDB(TheSportsDBFreeKey, WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	assert.True(t, c.Available())
	ctx := context.Background()

	ts, err := c.TeamStats(ctx, football.StatsRequest{Team: "Arsenal", League: "Premier League"})
	require.NoError(t, err)
	assert.Equal(t, TheSportsDBName, ts.Source)
	assert.Equal(t, 3, ts.MatchesPlayed, "unplayed events are skipped")
	assert.Equal(t, 1, ts.Wins)
	assert.Equal(t, 1, ts.Draws)
	assert.Equal(t, 1, ts.Losses)
	assert.Equal(t, 4, ts.GoalsFor)
	assert.Equal(t, 4, ts.GoalsAgainst)
	assert.Equal(t, "WDL", ts.Form)
	require.True(t, ts.HasHistory())
	assert.True(t, ts.Recent.Matches[0].IsHome)

	h, err := c.H2H(ctx, football.H2HRequest{Home: "Arsenal", Away: "Chelsea"})
	require.NoError(t, err)
	assert.Equal(t, 2, h.Matches)
	assert.Equal(t, 1, h.Team1Wins)
	assert.Equal(t, 1, h.Team2Wins)
	assert.Equal(t, []string{"H", "A"}, h.Results)

	// Arsenal was resolved once and remembered.
	assert.EqualValues(t, 2, atomic.LoadInt32(&searches))

	_, err = c.TeamStats(ctx, football.StatsRequest{Team: "Unknown Town"})
	assert.ErrorIs(t, err, core.ErrProviderBadResponse)
}

func TestTheSportsDBDisabledWithoutKey(t *testing.T) {
	assert.False(t, NewTheSportsDB("").Available())
}

func TestEstimator(t *testing.T) {
	e := NewEstimator()
	ctx := context.Background()

	top := e.TeamStats(ctx, football.StatsRequest{Team: "Manchester City", League: "Premier League"})
	assert.True(t, top.Estimated)
	assert.Equal(t, 20, top.MatchesPlayed)
	assert.Equal(t, 72, top.GoalsFor)
	assert.Equal(t, 39, top.GoalsAgainst)
	assert.Equal(t, "WWWDW", top.Form)

	low := e.TeamStats(ctx, football.StatsRequest{Team: "Luton Town", League: "Bundesliga"})
	assert.Equal(t, 48, low.GoalsFor)
	assert.Equal(t, 72, low.GoalsAgainst)

	assert.Equal(t, 2, Tier("Aston Villa FC"))
	assert.Equal(t, 1, Tier("Paris Saint Germain"))

	h := e.H2H(ctx, football.H2HRequest{Home: "Arsenal", Away: "Brentford"})
	assert.Equal(t, []string{"H", "H", "H", "D", "A"}, h.Results)
	assert.Equal(t, 5, h.Matches)
}

type fakeSource struct {
	name  string
	err   error
	stats football.TeamStats
	h2h   football.H2H
	calls int32
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Available() bool { return true }

func (f *fakeSource) TeamStats(context.Context, football.StatsRequest) (football.TeamStats, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return football.TeamStats{}, f.err
	}
	return f.stats, nil
}

func (f *fakeSource) H2H(_ context.Context, req football.H2HRequest) (football.H2H, error) {
	if f.err != nil {
		return football.H2H{}, f.err
	}
	h := f.h2h
	h.Team1, h.Team2, h.Source = req.Home, req.Away, f.name
	return h, nil
}

func TestMultiSourceFallsThroughAndCaches(t *testing.T) {
	down := &fakeSource{name: "api-football", err: core.Unavailable("api-football", errors.New("suspended"))}
	up := &fakeSource{name: "football-data", stats: football.TeamStats{Team: "Arsenal", MatchesPlayed: 10, GoalsFor: 20, Source: "football-data"}}
	kv := NewMemoryKV()

	ms, err := NewMultiSource(MultiSourceConfig{Sources: []Source{down, up}, KV: kv})
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "api-football", "football-data", "estimate"}, ms.Providers())
	assert.Len(t, ms.Breakers(), 2)

	ctx := context.Background()
	req := football.StatsRequest{Team: "Arsenal", League: "Premier League", Season: 2024}

	first := ms.TeamStats(ctx, req)
	assert.Equal(t, "football-data", first.Provider)
	assert.True(t, first.Degraded, "no per-match history")

	second := ms.TeamStats(ctx, req)
	assert.Equal(t, "cache", second.Provider)
	assert.Equal(t, 20, second.Value.GoalsFor)
	assert.True(t, second.Degraded, "season-only stats stay degraded when cached")
	assert.Equal(t, "no per-match history", second.Reason)
	assert.EqualValues(t, 1, atomic.LoadInt32(&up.calls))
}

func TestMultiSourceCachedHistoryIsNotDegraded(t *testing.T) {
	form, err := football.NewTeamForm("Arsenal", []football.MatchResult{{
		Date: time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC), HomeTeam: "Arsenal", AwayTeam: "Chelsea",
		HomeGoals: 2, AwayGoals: 1, IsHome: true,
	}})
	require.NoError(t, err)
	up := &fakeSource{name: "football-data", stats: football.TeamStats{Team: "Arsenal", MatchesPlayed: 1, GoalsFor: 2, Recent: &form}}

	ms, err := NewMultiSource(MultiSourceConfig{Sources: []Source{up}, KV: NewMemoryKV()})
	require.NoError(t, err)

	ctx := context.Background()
	req := football.StatsRequest{Team: "Arsenal", League: "Premier League", Season: 2024}
	first := ms.TeamStats(ctx, req)
	assert.False(t, first.Degraded)

	second := ms.TeamStats(ctx, req)
	assert.Equal(t, "cache", second.Provider)
	assert.False(t, second.Degraded)
	require.NotNil(t, second.Value.Recent)
	assert.Equal(t, 1, second.Value.Recent.Len())
}

func TestMultiSourceH2HSkipsEmptyRecords(t *testing.T) {
	empty := &fakeSource{name: "api-football"}
	met := &fakeSource{name: "football-data", h2h: football.H2H{Matches: 2, Team1Wins: 1, Draws: 1, Results: []string{"H", "D"}}}

	ms, err := NewMultiSource(MultiSourceConfig{Sources: []Source{empty, met}})
	require.NoError(t, err)

	h := ms.H2H(context.Background(), football.H2HRequest{Home: "Arsenal", Away: "Leeds"})
	assert.Equal(t, "football-data", h.Provider)
	assert.Equal(t, 2, h.Value.Matches)
	require.Len(t, h.Attempts, 2)
	assert.Equal(t, "rejected", h.Attempts[0].Status)
}

func TestMultiSourceEstimatesWhenAllFail(t *testing.T) {
	down := &fakeSource{name: "api-football", err: core.Timeout("api-football", context.DeadlineExceeded)}
	empty := &fakeSource{name: "football-data", stats: football.TeamStats{Team: "Arsenal"}}

	ms, err := NewMultiSource(MultiSourceConfig{Sources: []Source{down, empty}})
	require.NoError(t, err)

	o := ms.TeamStats(context.Background(), football.StatsRequest{Team: "Arsenal"})
	assert.True(t, o.Fallback)
	assert.True(t, o.Value.Estimated)
	require.Len(t, o.Attempts, 3)
	assert.Equal(t, "failed", o.Attempts[0].Status)
	assert.Equal(t, "rejected", o.Attempts[1].Status)

	h := ms.H2H(context.Background(), football.H2HRequest{Home: "Arsenal", Away: "Leeds"})
	assert.Equal(t, EstimatorName, h.Provider)
	assert.True(t, h.Fallback)
	assert.True(t, h.Value.Estimated)
	require.Len(t, h.Attempts, 3)
	assert.Equal(t, "rejected", h.Attempts[1].Status)
}

func TestMemoryKVExpiry(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	now = now.Add(time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
