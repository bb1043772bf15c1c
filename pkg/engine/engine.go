// Package engine composes stats, prediction, contextual analysis, odds and
// staking into one match analysis.
package engine

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/analysis"
	"github.com/phenomenon0/bet-copilot/pkg/football"
	"github.com/phenomenon0/bet-copilot/pkg/kelly"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/odds"
	"github.com/phenomenon0/bet-copilot/pkg/prediction"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/chain"
	"github.com/phenomenon0/bet-copilot/pkg/stats"
)

// Stage represents a step of an analysis.
type Stage string

const (
	StageHomeStats  Stage = "home_stats"
	StageAwayStats  Stage = "away_stats"
	StageH2H        Stage = "h2h"
	StagePrediction Stage = "prediction"
	StageContext    Stage = "context"
	StageAdjustment Stage = "adjustment"
	StageMarkets    Stage = "markets"
	StageOdds       Stage = "odds"
	StageStaking    Stage = "staking"
)

// StageResult records how one stage went and who supplied its data.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Success   bool          `json:"success"`
	Provider  string        `json:"provider,omitempty"`
	Degraded  bool          `json:"degraded,omitempty"`
	Fallback  bool          `json:"fallback,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// StatsSource resolves team statistics and head-to-head records.
type StatsSource interface {
	TeamStats(ctx context.Context, req football.StatsRequest) chain.Outcome[football.TeamStats]
	H2H(ctx context.Context, req football.H2HRequest) chain.Outcome[football.H2H]
}

// OddsSource resolves 1X2 odds for a fixture.
type OddsSource interface {
	Resolve(ctx context.Context, req odds.Request) chain.Outcome[odds.MatchOdds]
}

// Request asks for the analysis of one fixture. Zero league fields take
// the aggregator's defaults.
type Request struct {
	HomeTeam   string          `json:"home_team"`
	AwayTeam   string          `json:"away_team"`
	HomeTeamID int             `json:"home_team_id,omitempty"`
	AwayTeamID int             `json:"away_team_id,omitempty"`
	League     string          `json:"league,omitempty"`
	LeagueID   int             `json:"league_id,omitempty"`
	Season     int             `json:"season,omitempty"`
	Odds       *odds.MatchOdds `json:"odds,omitempty"`
	Context    string          `json:"context,omitempty"`
	Bankroll   decimal.Decimal `json:"bankroll"`
}

// Validate checks the request before any provider is called.
func (r Request) Validate() error {
	if strings.TrimSpace(r.HomeTeam) == "" || strings.TrimSpace(r.AwayTeam) == "" {
		return core.InvalidInput("both teams are required")
	}
	if football.SameTeam(r.HomeTeam, r.AwayTeam) {
		return core.InvalidInput("%q cannot play itself", r.HomeTeam)
	}
	if r.Bankroll.IsNegative() {
		return core.InvalidInput("bankroll %s is negative", r.Bankroll)
	}
	if q := r.Odds; q != nil {
		for _, p := range []odds.Price{q.Home, q.Draw, q.Away} {
			if math.IsNaN(p.Odds) || math.IsInf(p.Odds, 0) {
				return core.InvalidInput("decimal odds %v are not finite", p.Odds)
			}
			if p.Odds != 0 && p.Odds <= 1 {
				return core.InvalidInput("decimal odds %.2f must exceed 1.0", p.Odds)
			}
		}
	}
	return nil
}

// ValueBet is the staking advice for one 1X2 outcome.
type ValueBet struct {
	Outcome   prediction.Outcome `json:"outcome"`
	Selection string             `json:"selection"`
	Bookmaker string             `json:"bookmaker,omitempty"`
	// MarketProb is the bookmaker's no-vig probability, when odds are live.
	MarketProb float64 `json:"market_prob,omitempty"`
	kelly.Recommendation
	Stake decimal.Decimal `json:"stake"`
}

// Analysis is the full result for one fixture. It is built once and not
// modified afterwards.
type Analysis struct {
	ID        string    `json:"id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	League    string    `json:"league"`
	CreatedAt time.Time `json:"created_at"`

	HomeStats football.TeamStats `json:"home_stats"`
	AwayStats football.TeamStats `json:"away_stats"`
	H2H       football.H2H       `json:"h2h"`

	// BasePrediction comes from stats alone; Prediction applies the
	// contextual adjustments.
	BasePrediction prediction.MatchPrediction     `json:"base_prediction"`
	Prediction     prediction.MatchPrediction     `json:"prediction"`
	Context        analysis.CollaborativeAnalysis `json:"context"`
	Markets        []prediction.MarketPrediction  `json:"markets,omitempty"`

	Odds        odds.MatchOdds `json:"odds"`
	MarketProbs *odds.NoVig    `json:"market_probs,omitempty"`
	Bets        []ValueBet     `json:"bets"`
	Best        *ValueBet      `json:"best,omitempty"`

	KeyInsights []string      `json:"key_insights"`
	Stages      []StageResult `json:"stages"`
	Degraded    bool          `json:"degraded"`
	Duration    time.Duration `json:"duration"`
}

// ValueBets returns the outcomes that clear the EV threshold.
func (a *Analysis) ValueBets() []ValueBet {
	var out []ValueBet
	for _, b := range a.Bets {
		if b.IsValueBet {
			out = append(out, b)
		}
	}
	return out
}

// Fixture names the match as "Home v Away".
func (a *Analysis) Fixture() string {
	return a.HomeTeam + " v " + a.AwayTeam
}

// Stage returns the result of the named stage.
func (a *Analysis) Stage(s Stage) (StageResult, bool) {
	for _, r := range a.Stages {
		if r.Stage == s {
			return r, true
		}
	}
	return StageResult{}, false
}

// Config configures an Aggregator. Nil components take versions that need
// no network access.
type Config struct {
	Stats     StatsSource
	Analysis  analysis.Source
	Odds      OddsSource
	Predictor *prediction.Predictor
	// Markets enables alternative-market predictions when set.
	Markets *prediction.MarketsPredictor
	Kelly   *kelly.Calculator

	Bankroll decimal.Decimal
	League   string
	LeagueID int
	Season   int
	H2HLast  int // Default: 10

	// Hooks run synchronously on the analysing goroutine.
	OnStageComplete func(id string, r StageResult)
	OnAnalysis      func(a *Analysis)

	Now    func() time.Time
	Logger *log.Logger
}

// Aggregator runs analyses. It holds no per-analysis state and is safe for
// concurrent use.
type Aggregator struct {
	stats     StatsSource
	analysis  analysis.Source
	odds      OddsSource
	predictor *prediction.Predictor
	markets   *prediction.MarketsPredictor
	kelly     *kelly.Calculator

	bankroll decimal.Decimal
	league   string
	leagueID int
	season   int
	h2hLast  int

	onStage    func(string, StageResult)
	onAnalysis func(*Analysis)
	now        func() time.Time
	logger     *log.Logger
}

// New creates an aggregator.
func New(cfg Config) (*Aggregator, error) {
	var err error
	if cfg.Stats == nil {
		cfg.Stats, err = stats.NewMultiSource(stats.MultiSourceConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
	}
	if cfg.Analysis == nil {
		cfg.Analysis, err = analysis.NewRanked(nil, nil, nil, cfg.Logger)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Odds == nil {
		cfg.Odds, err = odds.NewSource(odds.SourceConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
	}
	if cfg.Predictor == nil {
		cfg.Predictor = prediction.NewPredictor(&prediction.Config{Logger: cfg.Logger})
	}
	if cfg.Kelly == nil {
		cfg.Kelly = kelly.NewCalculator(nil)
	}
	if cfg.H2HLast <= 0 {
		cfg.H2HLast = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Aggregator{
		stats:      cfg.Stats,
		analysis:   cfg.Analysis,
		odds:       cfg.Odds,
		predictor:  cfg.Predictor,
		markets:    cfg.Markets,
		kelly:      cfg.Kelly,
		bankroll:   cfg.Bankroll,
		league:     cfg.League,
		leagueID:   cfg.LeagueID,
		season:     cfg.Season,
		h2hLast:    cfg.H2HLast,
		onStage:    cfg.OnStageComplete,
		onAnalysis: cfg.OnAnalysis,
		now:        cfg.Now,
		logger:     logging.Component(cfg.Logger, "engine"),
	}, nil
}

// Analyze runs every stage for one fixture. Provider failures degrade the
// result but never fail it; only an invalid request returns an error.
func (a *Aggregator) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = a.withDefaults(req)

	started := a.now()
	out := &Analysis{
		ID:        uuid.NewString(),
		HomeTeam:  req.HomeTeam,
		AwayTeam:  req.AwayTeam,
		League:    req.League,
		CreatedAt: started,
	}
	a.logger.Info("analysis started", "id", out.ID, "home", req.HomeTeam, "away", req.AwayTeam, "league", req.League)

	a.collectStats(ctx, req, out)

	t := a.now()
	out.BasePrediction = a.predictor.PredictFromStats(out.HomeStats, out.AwayStats)
	a.record(out, StageResult{
		Stage:    StagePrediction,
		Success:  true,
		Provider: predictionBasis(out.HomeStats, out.AwayStats),
		Degraded: out.HomeStats.Estimated || out.AwayStats.Estimated,
	}, t)

	t = a.now()
	out.Context = a.analysis.Analyze(ctx, analysis.MatchContext{
		HomeTeam:          req.HomeTeam,
		AwayTeam:          req.AwayTeam,
		HomeForm:          out.HomeStats.Form,
		AwayForm:          out.AwayStats.Form,
		H2H:               out.H2H.Results,
		AdditionalContext: req.Context,
	})
	a.record(out, StageResult{
		Stage:    StageContext,
		Success:  true,
		Provider: strings.Join(out.Context.Providers, "+"),
		Degraded: out.Context.Degraded,
		Reason:   out.Context.Reason,
	}, t)

	t = a.now()
	hf, af := out.Context.Consensus.LambdaAdjustmentHome, out.Context.Consensus.LambdaAdjustmentAway
	out.Prediction = a.predictor.Adjust(out.BasePrediction, neutralIfUnset(hf), neutralIfUnset(af))
	a.record(out, StageResult{Stage: StageAdjustment, Success: true}, t)

	a.predictMarkets(out)

	t = a.now()
	o := a.odds.Resolve(ctx, odds.Request{
		Sport:      odds.SportKey(req.League),
		HomeTeam:   req.HomeTeam,
		AwayTeam:   req.AwayTeam,
		Quoted:     req.Odds,
		Prediction: out.Prediction,
	})
	out.Odds = o.Value
	if !o.Value.Synthetic {
		if nv, err := odds.NoVigProbabilities(o.Value); err == nil {
			out.MarketProbs = &nv
		}
	}
	a.record(out, outcomeStage(StageOdds, o.Provider, o.Degraded, o.Fallback, o.Reason), t)

	t = a.now()
	out.Bets, out.Best = a.stake(out, req.Bankroll)
	a.record(out, StageResult{Stage: StageStaking, Success: true}, t)

	out.KeyInsights = KeyInsights(out)
	out.Duration = a.now().Sub(started)

	a.logger.Info("analysis complete", "id", out.ID,
		"favorite", out.Prediction.Favorite(), "value_bets", len(out.ValueBets()),
		"degraded", out.Degraded, "took", out.Duration)
	if a.onAnalysis != nil {
		a.onAnalysis(out)
	}
	return out, nil
}

func (a *Aggregator) withDefaults(req Request) Request {
	if req.League == "" {
		req.League = a.league
		if req.LeagueID == 0 {
			req.LeagueID = a.leagueID
		}
	}
	if req.Season == 0 {
		req.Season = a.season
	}
	if req.Bankroll.IsZero() {
		req.Bankroll = a.bankroll
	}
	return req
}

// collectStats resolves both teams and the head-to-head record
// concurrently. Each branch ends in an estimate, so none can fail.
func (a *Aggregator) collectStats(ctx context.Context, req Request, out *Analysis) {
	var (
		g          errgroup.Group
		home, away chain.Outcome[football.TeamStats]
		h2h        chain.Outcome[football.H2H]
		took       [3]time.Duration
	)
	timed := func(i int, fn func()) func() error {
		return func() error {
			start := time.Now()
			fn()
			took[i] = time.Since(start)
			return nil
		}
	}
	g.Go(timed(0, func() {
		home = a.stats.TeamStats(ctx, football.StatsRequest{
			Team: req.HomeTeam, TeamID: req.HomeTeamID, League: req.League, LeagueID: req.LeagueID, Season: req.Season,
		})
	}))
	g.Go(timed(1, func() {
		away = a.stats.TeamStats(ctx, football.StatsRequest{
			Team: req.AwayTeam, TeamID: req.AwayTeamID, League: req.League, LeagueID: req.LeagueID, Season: req.Season,
		})
	}))
	g.Go(timed(2, func() {
		h2h = a.stats.H2H(ctx, football.H2HRequest{
			Home: req.HomeTeam, Away: req.AwayTeam, HomeID: req.HomeTeamID, AwayID: req.AwayTeamID, League: req.League, Last: a.h2hLast,
		})
	}))
	_ = g.Wait()

	out.HomeStats, out.AwayStats, out.H2H = home.Value, away.Value, h2h.Value
	if out.HomeStats.Team == "" {
		out.HomeStats.Team = req.HomeTeam
	}
	if out.AwayStats.Team == "" {
		out.AwayStats.Team = req.AwayTeam
	}

	now := a.now()
	for i, r := range []StageResult{
		outcomeStage(StageHomeStats, home.Provider, home.Degraded, home.Fallback, home.Reason),
		outcomeStage(StageAwayStats, away.Provider, away.Degraded, away.Fallback, away.Reason),
		outcomeStage(StageH2H, h2h.Provider, h2h.Degraded, h2h.Fallback, h2h.Reason),
	} {
		r.Duration = took[i]
		r.Timestamp = now
		a.emit(out, r)
	}
}

func (a *Aggregator) predictMarkets(out *Analysis) {
	t := a.now()
	r := StageResult{Stage: StageMarkets}
	switch {
	case a.markets == nil:
		r.Reason = "alternative markets disabled"
	case !out.HomeStats.HasHistory() || !out.AwayStats.HasHistory():
		r.Reason = "no per-match history"
	default:
		out.Markets = a.markets.PredictAll(*out.HomeStats.Recent, *out.AwayStats.Recent)
		r.Success = true
		r.Provider = out.HomeStats.Source
	}
	a.record(out, r, t)
}

// stake prices every outcome and picks the value bet with the highest EV.
func (a *Aggregator) stake(out *Analysis, bankroll decimal.Decimal) ([]ValueBet, *ValueBet) {
	bets := make([]ValueBet, 0, len(prediction.Outcomes))
	var best *ValueBet
	for _, o := range prediction.Outcomes {
		price := priceFor(out.Odds, o)
		rec := a.kelly.Calculate(out.Prediction.Probability(o), price.Odds)
		b := ValueBet{
			Outcome:        o,
			Selection:      selection(out, o),
			Bookmaker:      price.Bookmaker,
			Recommendation: rec,
			Stake:          kelly.Amount(rec, bankroll),
		}
		if out.MarketProbs != nil {
			b.MarketProb = marketProb(*out.MarketProbs, o)
		}
		bets = append(bets, b)
	}
	for i := range bets {
		if !bets[i].IsValueBet {
			continue
		}
		if best == nil || bets[i].EV > best.EV {
			b := bets[i]
			best = &b
		}
	}
	return bets, best
}

func (a *Aggregator) record(out *Analysis, r StageResult, started time.Time) {
	now := a.now()
	r.Duration = now.Sub(started)
	r.Timestamp = now
	a.emit(out, r)
}

func (a *Aggregator) emit(out *Analysis, r StageResult) {
	out.Stages = append(out.Stages, r)
	if r.Degraded {
		out.Degraded = true
	}
	a.logger.Debug("stage complete", "id", out.ID, "stage", r.Stage, "provider", r.Provider, "degraded", r.Degraded, "took", r.Duration)
	if a.onStage != nil {
		a.onStage(out.ID, r)
	}
}

func outcomeStage(s Stage, provider string, degraded, fallback bool, reason string) StageResult {
	return StageResult{
		Stage:    s,
		Success:  true,
		Provider: provider,
		Degraded: degraded || fallback,
		Fallback: fallback,
		Reason:   reason,
	}
}

func predictionBasis(home, away football.TeamStats) string {
	if home.HasHistory() && away.HasHistory() {
		return "form"
	}
	return "season"
}

func neutralIfUnset(f float64) float64 {
	if f <= 0 {
		return 1.0
	}
	return f
}

func priceFor(m odds.MatchOdds, o prediction.Outcome) odds.Price {
	switch o {
	case prediction.HomeWin:
		return m.Home
	case prediction.Draw:
		return m.Draw
	default:
		return m.Away
	}
}

func marketProb(nv odds.NoVig, o prediction.Outcome) float64 {
	switch o {
	case prediction.HomeWin:
		return nv.Home
	case prediction.Draw:
		return nv.Draw
	default:
		return nv.Away
	}
}

func selection(out *Analysis, o prediction.Outcome) string {
	switch o {
	case prediction.HomeWin:
		return out.HomeTeam
	case prediction.Draw:
		return odds.DrawOutcome
	default:
		return out.AwayTeam
	}
}
