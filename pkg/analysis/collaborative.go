package analysis

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/chain"
)

// Source produces the contextual analysis for a fixture. Both the
// dual-provider Collaborator and a single ranked chain satisfy it.
type Source interface {
	Analyze(ctx context.Context, mc MatchContext) CollaborativeAnalysis
}

// Analyst is one branch of a collaborative analysis.
type Analyst struct {
	Provider Provider
	Breaker  *breaker.Breaker
	Timeout  time.Duration
}

// CollaboratorConfig configures a Collaborator.
type CollaboratorConfig struct {
	Primary   Analyst
	Secondary Analyst
	// Fallback runs only when neither analyst produced a usable analysis.
	Fallback chain.Fallback[MatchContext, ContextualAnalysis]
	Merger   *Merger
	Accept   func(ContextualAnalysis) bool
	Timeout  time.Duration
	Observer chain.Observer
	Logger   *log.Logger
}

// Collaborator runs two analysts concurrently, always waits for both, and
// merges whatever came back.
type Collaborator struct {
	primary   *chain.Chain[MatchContext, ContextualAnalysis]
	secondary *chain.Chain[MatchContext, ContextualAnalysis]
	fallback  chain.Fallback[MatchContext, ContextualAnalysis]
	merger    *Merger
	logger    *log.Logger
}

// absent marks a branch that produced nothing usable.
type absent struct{}

func (absent) Name() string { return "absent" }
func (absent) Estimate(context.Context, MatchContext) ContextualAnalysis {
	return ContextualAnalysis{}
}

// NewCollaborator wires each analyst into a one-link chain so breaker,
// timeout and acceptance handling match every other chain.
func NewCollaborator(cfg CollaboratorConfig) (*Collaborator, error) {
	if cfg.Fallback == nil {
		cfg.Fallback = NewSimpleAnalyzer()
	}
	if cfg.Merger == nil {
		cfg.Merger = NewMerger(MergerConfig{})
	}
	if cfg.Accept == nil {
		cfg.Accept = GoodEnough
	}

	branch := func(name string, a Analyst) (*chain.Chain[MatchContext, ContextualAnalysis], error) {
		var links []chain.Link[MatchContext, ContextualAnalysis]
		if a.Provider != nil {
			links = append(links, chain.Link[MatchContext, ContextualAnalysis]{Provider: a.Provider, Breaker: a.Breaker, Timeout: a.Timeout})
		}
		return chain.New(chain.Config[MatchContext, ContextualAnalysis]{
			Name:     name,
			Links:    links,
			Fallback: absent{},
			Accept:   cfg.Accept,
			Timeout:  cfg.Timeout,
			Observer: cfg.Observer,
			Logger:   cfg.Logger,
		})
	}

	primary, err := branch("analysis.primary", cfg.Primary)
	if err != nil {
		return nil, err
	}
	secondary, err := branch("analysis.secondary", cfg.Secondary)
	if err != nil {
		return nil, err
	}

	return &Collaborator{
		primary:   primary,
		secondary: secondary,
		fallback:  cfg.Fallback,
		merger:    cfg.Merger,
		logger:    logging.Component(cfg.Logger, "analysis"),
	}, nil
}

// Analyze runs both branches as a join-all. A failing branch resolves to
// absent and never cancels its sibling.
func (c *Collaborator) Analyze(ctx context.Context, mc MatchContext) CollaborativeAnalysis {
	var (
		g    errgroup.Group
		a, b *ContextualAnalysis
	)
	g.Go(func() error {
		a = present(c.primary.Run(ctx, mc))
		return nil
	})
	g.Go(func() error {
		b = present(c.secondary.Run(ctx, mc))
		return nil
	})
	_ = g.Wait()

	if a == nil && b == nil {
		est := c.fallback.Estimate(ctx, mc)
		c.logger.Warn("both analysts failed, using fallback", "fallback", c.fallback.Name(), "home", mc.HomeTeam, "away", mc.AwayTeam)
		return CollaborativeAnalysis{
			Consensus:        est,
			AgreementScore:   0,
			DivergencePoints: []string{},
			Providers:        []string{c.fallback.Name()},
			Degraded:         true,
			Reason:           "no AI analyst available",
		}
	}

	out := c.merger.Merge(mc.HomeTeam, mc.AwayTeam, a, b)
	c.logger.Debug("analysis merged", "providers", out.Providers, "agreement", out.AgreementScore)
	return out
}

func present(o chain.Outcome[ContextualAnalysis]) *ContextualAnalysis {
	if o.Fallback {
		return nil
	}
	v := o.Value
	if v.Provider == "" {
		v.Provider = o.Provider
	}
	return &v
}

// Ranked is a Source over a single chain of analysts tried in order.
type Ranked struct {
	chain *chain.Chain[MatchContext, ContextualAnalysis]
}

// NewRanked builds a chain over analysts ending in fallback.
func NewRanked(analysts []Analyst, fallback chain.Fallback[MatchContext, ContextualAnalysis], observer chain.Observer, logger *log.Logger) (*Ranked, error) {
	if fallback == nil {
		fallback = NewSimpleAnalyzer()
	}
	links := make([]chain.Link[MatchContext, ContextualAnalysis], 0, len(analysts))
	for _, a := range analysts {
		links = append(links, chain.Link[MatchContext, ContextualAnalysis]{Provider: a.Provider, Breaker: a.Breaker, Timeout: a.Timeout})
	}
	c, err := chain.New(chain.Config[MatchContext, ContextualAnalysis]{
		Name:     "analysis",
		Links:    links,
		Fallback: fallback,
		Accept:   GoodEnough,
		Observer: observer,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &Ranked{chain: c}, nil
}

// Analyze returns the first acceptable analysis. A fallback result carries
// zero agreement since nothing independent backed it.
func (r *Ranked) Analyze(ctx context.Context, mc MatchContext) CollaborativeAnalysis {
	o := r.chain.Run(ctx, mc)
	v := o.Value
	if v.Provider == "" {
		v.Provider = o.Provider
	}
	agreement := 1.0
	if o.Fallback {
		agreement = 0
	}
	return CollaborativeAnalysis{
		Consensus:        v,
		Primary:          &v,
		AgreementScore:   agreement,
		DivergencePoints: []string{},
		Providers:        []string{o.Provider},
		Degraded:         o.Degraded,
		Reason:           o.Reason,
	}
}
