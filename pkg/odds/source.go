package odds

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/prediction"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/chain"
)

// QuotedName labels odds supplied by the caller.
const QuotedName = "quoted"

// Feed is a live odds provider.
type Feed interface {
	Name() string
	Available() bool
	FindEvent(ctx context.Context, sportKey, home, away string) (Event, error)
}

// Request asks for 1X2 odds of a fixture. Prediction prices the synthetic
// fallback; Quoted, when complete, short-circuits the live feed.
type Request struct {
	Sport      string
	HomeTeam   string
	AwayTeam   string
	Quoted     *MatchOdds
	Prediction prediction.MatchPrediction
}

// SourceConfig configures a Source.
type SourceConfig struct {
	Feed    Feed
	Breaker *breaker.Breaker
	// Margin is added when synthesizing odds. Default: DefaultMargin.
	Margin   float64
	Timeout  time.Duration
	Observer chain.Observer
	Logger   *log.Logger
}

// Source resolves 1X2 odds: caller quotes, then the live feed, then fair
// odds synthesized from the prediction.
type Source struct {
	chain   *chain.Chain[Request, MatchOdds]
	breaker *breaker.Breaker
}

// NewSource wires the odds chain.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultMargin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var links []chain.Link[Request, MatchOdds]
	s := &Source{}
	if cfg.Feed != nil {
		b := cfg.Breaker
		if b == nil {
			b = breaker.New(&breaker.Config{Name: cfg.Feed.Name(), Logger: cfg.Logger})
		}
		s.breaker = b
		feed := cfg.Feed
		links = append(links, chain.Link[Request, MatchOdds]{
			Provider: chain.ProviderFunc[Request, MatchOdds]{
				ID:    feed.Name(),
				Ready: feed.Available,
				Fn: func(ctx context.Context, req Request) core.Result[MatchOdds] {
					ev, err := feed.FindEvent(ctx, req.Sport, req.HomeTeam, req.AwayTeam)
					if err != nil {
						return core.Failure[MatchOdds](err)
					}
					m := ev.MatchOdds()
					m.Source = feed.Name()
					return core.Success(m)
				},
			},
			Breaker: b,
		})
	}

	margin := cfg.Margin
	c, err := chain.New(chain.Config[Request, MatchOdds]{
		Name:  "odds",
		Links: links,
		Fallback: chain.FallbackFunc[Request, MatchOdds]{
			ID: SyntheticName,
			Fn: func(_ context.Context, req Request) MatchOdds {
				return FairMatchOdds(req.Prediction, margin)
			},
		},
		Accept:   MatchOdds.Complete,
		Timeout:  cfg.Timeout,
		Observer: cfg.Observer,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.chain = c
	return s, nil
}

// Resolve returns the best odds available for the request. Complete quoted
// odds are used as given.
func (s *Source) Resolve(ctx context.Context, req Request) chain.Outcome[MatchOdds] {
	if req.Quoted != nil && req.Quoted.Complete() {
		q := *req.Quoted
		q.Source = QuotedName
		return chain.Outcome[MatchOdds]{
			Value:    q,
			Provider: QuotedName,
			Attempts: []chain.Attempt{{Provider: QuotedName, Status: chain.AttemptAccepted}},
		}
	}
	return s.chain.Run(ctx, req)
}

// Breakers returns the live feed's breaker, if any.
func (s *Source) Breakers() []*breaker.Breaker {
	if s.breaker == nil {
		return nil
	}
	return []*breaker.Breaker{s.breaker}
}

// Providers lists the chain in rank order.
func (s *Source) Providers() []string {
	return s.chain.Providers()
}
