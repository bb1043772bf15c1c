package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/bet-copilot/pkg/analysis"
	"github.com/phenomenon0/bet-copilot/pkg/config"
	"github.com/phenomenon0/bet-copilot/pkg/kelly"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/metrics"
	"github.com/phenomenon0/bet-copilot/pkg/odds"
	"github.com/phenomenon0/bet-copilot/pkg/prediction"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/chain"
	"github.com/phenomenon0/bet-copilot/pkg/stats"
	"github.com/phenomenon0/bet-copilot/pkg/streaming"
	"github.com/phenomenon0/bet-copilot/tools"
)

// Deps are the optional collaborators of an assembled runtime.
type Deps struct {
	Metrics *metrics.CopilotMetrics
	Hub     *streaming.Hub
	Logger  *log.Logger

	// Client options, mostly for pointing the clients at test servers.
	APIFootballOptions  []stats.ClientOption
	FootballDataOptions []stats.ClientOption
	TheSportsDBOptions  []stats.ClientOption
	OddsOptions         []odds.ClientOption
}

// Runtime is a fully wired aggregator together with the pieces operators
// inspect: breakers, provider rankings and LLM spend.
type Runtime struct {
	Aggregator *Aggregator
	Stats      *stats.MultiSource
	Odds       *odds.Source
	OddsClient *odds.Client
	Analysts   []*analysis.LLMAnalyzer

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker
	order    []string
	closers  []func() error
}

// Assemble builds every provider chain from cfg. Each upstream gets one
// breaker, shared by every chain that calls it.
func Assemble(ctx context.Context, cfg *config.Config, d Deps) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	logger := d.Logger
	rt := &Runtime{breakers: make(map[string]*breaker.Breaker)}

	var observer chain.Observer
	if d.Metrics != nil {
		observer = d.Metrics
	}

	newBreaker := func(name string) *breaker.Breaker {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if b, ok := rt.breakers[name]; ok {
			return b
		}
		b := breaker.New(&breaker.Config{
			Name:             name,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			Timeout:          cfg.Breaker.Timeout,
			OnStateChange:    breakerHook(d),
			Logger:           logger,
		})
		rt.breakers[name] = b
		rt.order = append(rt.order, name)
		if d.Metrics != nil {
			d.Metrics.TrackBreaker(b)
		}
		return b
	}

	// Stats: cache, API-Football, Football-Data, TheSportsDB, estimates.
	var kv stats.KV = stats.NewMemoryKV()
	if cfg.Cache.RedisURL != "" {
		rkv, err := stats.DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			logging.Component(logger, "engine").Warn("redis unavailable, using in-process cache", "err", err)
		} else {
			kv = rkv
			rt.closers = append(rt.closers, rkv.Close)
		}
	}
	ms, err := stats.NewMultiSource(stats.MultiSourceConfig{
		Sources: []stats.Source{
			stats.NewAPIFootball(cfg.Keys.APIFootball, cfg.League.Season, d.APIFootballOptions...),
			stats.NewFootballData(cfg.Keys.FootballData, d.FootballDataOptions...),
			stats.NewTheSportsDB(cfg.Keys.TheSportsDB, d.TheSportsDBOptions...),
		},
		KV:         kv,
		CacheTTL:   cfg.Cache.StatsTTL,
		NewBreaker: newBreaker,
		Timeout:    cfg.Timeouts.Stats,
		Observer:   observer,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("stats chain: %w", err)
	}
	rt.Stats = ms

	// Contextual analysis.
	source, err := rt.analysisSource(cfg, newBreaker, observer, logger)
	if err != nil {
		return nil, err
	}

	// Odds: quoted, live feed, synthetic.
	rt.OddsClient = odds.NewClient(cfg.Keys.OddsAPI, d.OddsOptions...)
	rt.Odds, err = odds.NewSource(odds.SourceConfig{
		Feed:     rt.OddsClient,
		Breaker:  newBreaker(rt.OddsClient.Name()),
		Margin:   cfg.Staking.BookmakerMargin,
		Timeout:  cfg.Timeouts.Odds,
		Observer: observer,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("odds chain: %w", err)
	}

	rt.Aggregator, err = New(Config{
		Stats:    ms,
		Analysis: source,
		Odds:     rt.Odds,
		Predictor: prediction.NewPredictor(&prediction.Config{
			MatchesToConsider: cfg.Prediction.MatchesToConsider,
			HomeAdvantage:     cfg.Prediction.HomeAdvantage,
			MaxGoals:          cfg.Prediction.MaxGoals,
			Logger:            logger,
		}),
		Markets: prediction.NewMarketsPredictor(&prediction.MarketsConfig{
			MatchesToConsider: cfg.Prediction.MatchesToConsider,
			Logger:            logger,
		}),
		Kelly: kelly.NewCalculator(&kelly.Config{
			Fraction:    cfg.Staking.KellyFraction,
			MaxStakePct: cfg.Staking.MaxStakePct,
			MinEV:       cfg.Staking.MinEV,
		}),
		Bankroll:        decimal.NewFromFloat(cfg.Staking.Bankroll),
		League:          cfg.League.Name,
		LeagueID:        cfg.League.ID,
		Season:          cfg.League.Season,
		OnStageComplete: stageHook(d),
		OnAnalysis:      rt.analysisHook(d),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) analysisSource(cfg *config.Config, newBreaker func(string) *breaker.Breaker, observer chain.Observer, logger *log.Logger) (analysis.Source, error) {
	router := tools.NewModelRouter(cfg.LLMKeys())

	var analysts []analysis.Analyst
	seen := map[string]bool{}
	roles := []struct{ role, name string }{
		{"primary", cfg.AI.Primary},
		{"secondary", cfg.AI.Secondary},
	}
	for _, r := range roles {
		name := r.name
		if name == "" {
			name = r.role
		}
		a, err := analysis.AnalyzerFromRouter(router, name, logger)
		if err != nil {
			return nil, err
		}
		if seen[a.Name()] {
			continue
		}
		seen[a.Name()] = true
		rt.Analysts = append(rt.Analysts, a)
		analysts = append(analysts, analysis.Analyst{
			Provider: a,
			Breaker:  newBreaker(a.Name()),
			Timeout:  cfg.Timeouts.AI,
		})
	}

	if cfg.AI.Collaborative && len(analysts) == 2 {
		return analysis.NewCollaborator(analysis.CollaboratorConfig{
			Primary:   analysts[0],
			Secondary: analysts[1],
			Timeout:   cfg.Timeouts.AI,
			Observer:  observer,
			Logger:    logger,
		})
	}
	return analysis.NewRanked(analysts, nil, observer, logger)
}

func breakerHook(d Deps) func(name string, from, to breaker.State) {
	return func(name string, from, to breaker.State) {
		if d.Metrics != nil {
			d.Metrics.OnBreakerStateChange(name, from, to)
		}
		if d.Hub != nil {
			d.Hub.OnBreakerStateChange(name, from, to)
		}
	}
}

func stageHook(d Deps) func(string, StageResult) {
	if d.Metrics == nil {
		return nil
	}
	return func(_ string, r StageResult) {
		d.Metrics.RecordStage(string(r.Stage), r.Duration.Seconds())
	}
}

func (rt *Runtime) analysisHook(d Deps) func(*Analysis) {
	return func(a *Analysis) {
		if m := d.Metrics; m != nil {
			status := "ok"
			if a.Degraded {
				status = "degraded"
			}
			agreement := a.Context.AgreementScore
			if len(a.Context.Providers) < 2 {
				agreement = -1
			}
			m.RecordAnalysis(status, a.Duration.Seconds(), agreement)
			m.RecordConfidence(a.Context.Consensus.Provider, a.Context.Consensus.Confidence)
			if b := a.Best; b != nil {
				m.RecordValueBet(string(b.Outcome), string(b.RiskLevel), b.EV, b.RecommendedStake, b.Stake)
			}
			m.UpdateOddsQuota(rt.OddsClient.Remaining())
			for name, u := range rt.LLMUsage() {
				m.UpdateLLMUsage(name, u.PromptTokens, u.CompletionTokens, u.EstimatedCostUSD)
			}
		}
		if h := d.Hub; h != nil {
			h.BroadcastAnalysis(a.Fixture(), a)
			if a.Best != nil {
				h.BroadcastValueBet(a.Fixture(), a.Best)
			}
		}
	}
}

// Breaker returns the named provider's breaker.
func (rt *Runtime) Breaker(name string) (*breaker.Breaker, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b, ok := rt.breakers[name]
	return b, ok
}

// Breakers snapshots every breaker in creation order.
func (rt *Runtime) Breakers() []breaker.Snapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]breaker.Snapshot, 0, len(rt.order))
	for _, name := range rt.order {
		out = append(out, rt.breakers[name].Snapshot())
	}
	return out
}

// Providers lists each chain's providers in rank order.
func (rt *Runtime) Providers() map[string][]string {
	names := make([]string, 0, len(rt.Analysts)+1)
	for _, a := range rt.Analysts {
		names = append(names, a.Name())
	}
	names = append(names, analysis.NewSimpleAnalyzer().Name())
	return map[string][]string{
		"stats":    rt.Stats.Providers(),
		"odds":     rt.Odds.Providers(),
		"analysis": names,
	}
}

// LLMUsage reports the token spend of each analyst that tracks it.
func (rt *Runtime) LLMUsage() map[string]tools.CostSnapshot {
	out := make(map[string]tools.CostSnapshot, len(rt.Analysts))
	for _, a := range rt.Analysts {
		if u, ok := a.Usage(); ok {
			out[a.Name()] = u
		}
	}
	return out
}

// Close releases the cache connection.
func (rt *Runtime) Close() error {
	var errs []error
	for _, c := range rt.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
