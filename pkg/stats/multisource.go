package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/football"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/chain"
)

// CacheName names the cache link.
const CacheName = "cache"

// Source is what a live stats provider offers.
type Source interface {
	Name() string
	Available() bool
	TeamStats(ctx context.Context, req football.StatsRequest) (football.TeamStats, error)
	H2H(ctx context.Context, req football.H2HRequest) (football.H2H, error)
}

// MultiSourceConfig configures a MultiSource.
type MultiSourceConfig struct {
	// Sources are live providers in rank order.
	Sources []Source
	// KV enables the read-through cache when set.
	KV       KV
	CacheTTL time.Duration
	// NewBreaker builds the breaker for a provider; nil uses defaults.
	NewBreaker func(name string) *breaker.Breaker
	Timeout    time.Duration
	Observer   chain.Observer
	Logger     *log.Logger
}

// MultiSource resolves statistics through cache, live providers and the
// estimator, in that order. Each live provider has one breaker shared by
// its stats and head-to-head calls.
type MultiSource struct {
	stats      *chain.Chain[football.StatsRequest, football.TeamStats]
	h2h        *chain.Chain[football.H2HRequest, football.H2H]
	statsCache *Cached[football.StatsRequest, football.TeamStats]
	h2hCache   *Cached[football.H2HRequest, football.H2H]
	breakers   []*breaker.Breaker
	logger     *log.Logger
}

// NewMultiSource wires the stats and head-to-head chains.
func NewMultiSource(cfg MultiSourceConfig) (*MultiSource, error) {
	if cfg.NewBreaker == nil {
		cfg.NewBreaker = func(name string) *breaker.Breaker {
			return breaker.New(&breaker.Config{Name: name, Logger: cfg.Logger})
		}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}

	m := &MultiSource{logger: logging.Component(cfg.Logger, "stats")}

	var (
		statsLinks []chain.Link[football.StatsRequest, football.TeamStats]
		h2hLinks   []chain.Link[football.H2HRequest, football.H2H]
	)

	if cfg.KV != nil {
		m.statsCache = NewCached[football.StatsRequest, football.TeamStats](CacheName, cfg.KV, cfg.CacheTTL, statsKey).
			Classify(classifyStats)
		m.h2hCache = NewCached[football.H2HRequest, football.H2H](CacheName, cfg.KV, cfg.CacheTTL, h2hKey)
		// No breaker: a miss is routine, not a sign of an unhealthy store.
		statsLinks = append(statsLinks, chain.Link[football.StatsRequest, football.TeamStats]{Provider: m.statsCache, Timeout: time.Second})
		h2hLinks = append(h2hLinks, chain.Link[football.H2HRequest, football.H2H]{Provider: m.h2hCache, Timeout: time.Second})
	}

	for _, src := range cfg.Sources {
		src := src
		b := cfg.NewBreaker(src.Name())
		m.breakers = append(m.breakers, b)

		statsLinks = append(statsLinks, chain.Link[football.StatsRequest, football.TeamStats]{
			Provider: chain.ProviderFunc[football.StatsRequest, football.TeamStats]{
				ID:    src.Name(),
				Ready: src.Available,
				Fn: func(ctx context.Context, req football.StatsRequest) core.Result[football.TeamStats] {
					ts, err := src.TeamStats(ctx, req)
					if err != nil {
						return core.Failure[football.TeamStats](err)
					}
					return classifyStats(ts)
				},
			},
			Breaker: b,
		})
		h2hLinks = append(h2hLinks, chain.Link[football.H2HRequest, football.H2H]{
			Provider: chain.ProviderFunc[football.H2HRequest, football.H2H]{
				ID:    src.Name(),
				Ready: src.Available,
				Fn: func(ctx context.Context, req football.H2HRequest) core.Result[football.H2H] {
					h, err := src.H2H(ctx, req)
					if err != nil {
						return core.Failure[football.H2H](err)
					}
					return core.Success(h)
				},
			},
			Breaker: b,
		})
	}

	est := NewEstimator()
	var err error
	m.stats, err = chain.New(chain.Config[football.StatsRequest, football.TeamStats]{
		Name:  "stats",
		Links: statsLinks,
		Fallback: chain.FallbackFunc[football.StatsRequest, football.TeamStats]{
			ID: EstimatorName, Fn: est.TeamStats,
		},
		Accept:   football.TeamStats.Usable,
		Timeout:  cfg.Timeout,
		Observer: cfg.Observer,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	m.h2h, err = chain.New(chain.Config[football.H2HRequest, football.H2H]{
		Name:  "h2h",
		Links: h2hLinks,
		Fallback: chain.FallbackFunc[football.H2HRequest, football.H2H]{
			ID: EstimatorName, Fn: est.H2H,
		},
		Accept:   football.H2H.Usable,
		Timeout:  cfg.Timeout,
		Observer: cfg.Observer,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// TeamStats resolves a team's statistics. Live results are written back
// to the cache.
func (m *MultiSource) TeamStats(ctx context.Context, req football.StatsRequest) chain.Outcome[football.TeamStats] {
	o := m.stats.Run(ctx, req)
	if !o.Fallback && o.Provider != CacheName && m.statsCache != nil {
		if err := m.statsCache.Store(ctx, req, o.Value); err != nil {
			m.logger.Warn("cache write failed", "team", req.Team, "err", err)
		}
	}
	return o
}

// H2H resolves the head-to-head record of a pairing.
func (m *MultiSource) H2H(ctx context.Context, req football.H2HRequest) chain.Outcome[football.H2H] {
	o := m.h2h.Run(ctx, req)
	if !o.Fallback && o.Provider != CacheName && m.h2hCache != nil {
		if err := m.h2hCache.Store(ctx, req, o.Value); err != nil {
			m.logger.Warn("cache write failed", "home", req.Home, "away", req.Away, "err", err)
		}
	}
	return o
}

// Breakers returns the live providers' breakers.
func (m *MultiSource) Breakers() []*breaker.Breaker {
	return append([]*breaker.Breaker(nil), m.breakers...)
}

// Providers lists the stats chain in rank order.
func (m *MultiSource) Providers() []string {
	return m.stats.Providers()
}

// classifyStats marks season-only aggregates as degraded: alternative
// markets need per-match history.
func classifyStats(ts football.TeamStats) core.Result[football.TeamStats] {
	if !ts.HasHistory() {
		return core.Degraded(ts, "no per-match history")
	}
	return core.Success(ts)
}

func statsKey(req football.StatsRequest) string {
	return fmt.Sprintf("betcopilot:stats:%s:%s:%d",
		keyPart(req.Team), keyPart(LookupLeague(req.League, req.LeagueID).Name), req.Season)
}

func h2hKey(req football.H2HRequest) string {
	return fmt.Sprintf("betcopilot:h2h:%s:%s:%d", keyPart(req.Home), keyPart(req.Away), req.Last)
}

func keyPart(s string) string {
	return strings.ReplaceAll(football.NormalizeName(s), " ", "-")
}
