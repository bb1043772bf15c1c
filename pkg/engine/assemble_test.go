package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/pkg/config"
	"github.com/phenomenon0/bet-copilot/pkg/metrics"
	"github.com/phenomenon0/bet-copilot/pkg/odds"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
	"github.com/phenomenon0/bet-copilot/pkg/stats"
	"github.com/phenomenon0/bet-copilot/pkg/streaming"
)

func testConfig() *config.Config {
	return &config.Config{
		Breaker:  config.BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute},
		Cache:    config.CacheConfig{StatsTTL: time.Hour},
		Timeouts: config.TimeoutConfig{Default: time.Second, AI: time.Second, Stats: time.Second, Odds: time.Second},
		Prediction: config.PredictionConfig{
			MaxGoals: 8, HomeAdvantage: 1.1, MatchesToConsider: 5,
		},
		Staking: config.StakingConfig{
			KellyFraction: 0.25, MaxStakePct: 5, MinEV: 0.05, BookmakerMargin: 0.08, Bankroll: 500,
		},
		League: config.LeagueConfig{Name: "Premier League", ID: 39, Season: 2024},
		AI:     config.AIConfig{Primary: "gemini", Secondary: "blackbox", Collaborative: true},
		Server: config.ServerConfig{Addr: ":0", MaxConcurrent: 2},
	}
}

func TestAssembleWithoutCredentials(t *testing.T) {
	m := metrics.NewCopilotMetrics()
	cfg := testConfig()
	cfg.Cache.RedisURL = "not-a-redis-url"

	rt, err := Assemble(context.Background(), cfg, Deps{Metrics: m, Hub: streaming.NewHub(nil)})
	require.NoError(t, err)
	defer rt.Close()

	var names []string
	for _, s := range rt.Breakers() {
		names = append(names, s.Name)
		assert.Equal(t, breaker.Closed, s.State)
	}
	assert.Equal(t, []string{"api-football", "football-data", "thesportsdb", "gemini", "blackbox", "odds-api"}, names)

	providers := rt.Providers()
	assert.Equal(t, []string{"cache", "api-football", "football-data", "thesportsdb", "estimate"}, providers["stats"])
	assert.Equal(t, []string{"odds-api", "synthetic"}, providers["odds"])
	assert.Equal(t, []string{"gemini", "blackbox", "simple"}, providers["analysis"])

	a, err := rt.Aggregator.Analyze(context.Background(), Request{HomeTeam: "Arsenal", AwayTeam: "Chelsea"})
	require.NoError(t, err)
	assert.True(t, a.Degraded)
	assert.Equal(t, []string{"simple"}, a.Context.Providers)
	assert.True(t, a.Odds.Synthetic)
	assert.Equal(t, "Premier League", a.League)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("degraded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("stats", "api-football", "unavailable")))
	assert.Equal(t, 9, testutil.CollectAndCount(m.StageLatency))
	assert.Empty(t, rt.LLMUsage())
}

func TestAssembleBreakerHooks(t *testing.T) {
	m := metrics.NewCopilotMetrics()
	rt, err := Assemble(context.Background(), testConfig(), Deps{Metrics: m})
	require.NoError(t, err)

	b, ok := rt.Breaker("gemini")
	require.True(t, ok)
	b.ForceOpen()

	assert.Equal(t, float64(breaker.Open), testutil.ToFloat64(m.BreakerState.WithLabelValues("gemini")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("gemini", "closed", "open")))

	_, ok = rt.Breaker("nope")
	assert.False(t, ok)
}

func TestAssembleSingleAnalystUsesRankedChain(t *testing.T) {
	cfg := testConfig()
	cfg.AI = config.AIConfig{Primary: "gemini", Secondary: "gemini", Collaborative: true}

	rt, err := Assemble(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	require.Len(t, rt.Analysts, 1)

	a, err := rt.Aggregator.Analyze(context.Background(), Request{HomeTeam: "Arsenal", AwayTeam: "Chelsea"})
	require.NoError(t, err)
	assert.Zero(t, a.Context.AgreementScore)
}

func TestAssembleRejectsUnknownAnalyst(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Primary = "hal-9000"
	_, err := Assemble(context.Background(), cfg, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini")
}

func TestAssembleResolvesAnalystRoles(t *testing.T) {
	tests := []struct {
		name string
		ai   config.AIConfig
		want []string
	}{
		{"unset picks role defaults", config.AIConfig{}, []string{"gemini", "blackbox"}},
		{"role names", config.AIConfig{Primary: "primary", Secondary: "secondary"}, []string{"gemini", "blackbox"}},
		{"tier use cases", config.AIConfig{Primary: "elite", Secondary: "local"}, []string{"claude", "ollama"}},
		{"role and preset collapse", config.AIConfig{Primary: "primary", Secondary: "gemini"}, []string{"gemini"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.AI = tt.ai

			rt, err := Assemble(context.Background(), cfg, Deps{})
			require.NoError(t, err)
			defer rt.Close()

			var names []string
			for _, a := range rt.Analysts {
				names = append(names, a.Name())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

const liveOdds = `[{
  "id": "evt-9", "sport_key": "soccer_epl",
  "home_team": "Arsenal", "away_team": "Chelsea",
  "commence_time": "2025-03-01T15:00:00Z",
  "bookmakers": [{
    "key": "pinnacle", "title": "Pinnacle", "last_update": "2025-02-28T10:00:00Z",
    "markets": [{"key": "h2h", "last_update": "2025-02-28T10:00:00Z", "outcomes": [
      {"name": "Arsenal", "price": 1.80},
      {"name": "Chelsea", "price": 4.50},
      {"name": "Draw", "price": 3.80}
    ]}]
  }]
}]`

func TestAssembleUsesLiveOdds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sports/soccer_epl/odds" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("x-requests-remaining", "17")
		_, _ = w.Write([]byte(liveOdds))
	}))
	defer srv.Close()

	m := metrics.NewCopilotMetrics()
	cfg := testConfig()
	cfg.Keys.OddsAPI = "test-key"

	rt, err := Assemble(context.Background(), cfg, Deps{
		Metrics:     m,
		OddsOptions: []odds.ClientOption{odds.WithBaseURL(srv.URL), odds.WithRateLimit(1000, 10)},
	})
	require.NoError(t, err)

	a, err := rt.Aggregator.Analyze(context.Background(), Request{HomeTeam: "Arsenal", AwayTeam: "Chelsea"})
	require.NoError(t, err)

	assert.Equal(t, "odds-api", a.Odds.Source)
	assert.Equal(t, 1.80, a.Odds.Home.Odds)
	require.NotNil(t, a.MarketProbs)
	st, ok := a.Stage(StageOdds)
	require.True(t, ok)
	assert.False(t, st.Fallback)
	assert.Equal(t, 17.0, testutil.ToFloat64(m.OddsQuotaRemaining.WithLabelValues()))
}

func TestAssembleUsesKeylessTheSportsDB(t *testing.T) {
	ids := map[string]string{"Arsenal": "133604", "Chelsea": "133610"}
	event := func(date, homeID, awayID string, hg, ag string) map[string]string {
		return map[string]string{
			"dateEvent": date, "idHomeTeam": homeID, "idAwayTeam": awayID,
			"strHomeTeam": "home", "strAwayTeam": "away",
			"intHomeScore": hg, "intAwayScore": ag,
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/searchteams.php":
			name := r.URL.Query().Get("t")
			_ = json.NewEncoder(w).Encode(map[string]any{"teams": []map[string]string{
				{"idTeam": ids[name], "strTeam": name, "strSport": "Soccer"},
			}})
		case "/eventslast.php":
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]string{
				event("2025-02-22", "133604", "133610", "2", "0"),
				event("2025-02-08", "133610", "133604", "1", "1"),
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Keys.TheSportsDB = stats.TheSportsDBFreeKey

	rt, err := Assemble(context.Background(), cfg, Deps{
		TheSportsDBOptions: []stats.ClientOption{stats.WithBaseURL(srv.URL), stats.WithRateLimit(1000, 10)},
	})
	require.NoError(t, err)
	defer rt.Close()

	a, err := rt.Aggregator.Analyze(context.Background(), Request{HomeTeam: "Arsenal", AwayTeam: "Chelsea"})
	require.NoError(t, err)

	for _, stage := range []Stage{StageHomeStats, StageAwayStats, StageH2H} {
		st, ok := a.Stage(stage)
		require.True(t, ok, stage)
		assert.Equal(t, stats.TheSportsDBName, st.Provider, stage)
		assert.False(t, st.Fallback, stage)
	}
	assert.Equal(t, 2, a.HomeStats.MatchesPlayed)
}
