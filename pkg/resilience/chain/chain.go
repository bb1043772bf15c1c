// Package chain runs a ranked list of interchangeable providers, each behind
// its own circuit breaker, and always ends in a fallback that cannot fail.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
)

// Provider produces a T for an In. Available reports static readiness
// (credentials configured, client constructed) and is checked before any
// network attempt.
type Provider[In, T any] interface {
	Name() string
	Available() bool
	Call(ctx context.Context, in In) core.Result[T]
}

// Fallback is the final, always-succeeding link. It has no error path.
type Fallback[In, T any] interface {
	Name() string
	Estimate(ctx context.Context, in In) T
}

// Link binds a provider to its breaker and call timeout.
type Link[In, T any] struct {
	Provider Provider[In, T]
	Breaker  *breaker.Breaker
	Timeout  time.Duration
}

// Observer receives per-attempt and per-run events, typically for metrics.
type Observer interface {
	ObserveAttempt(chain, provider, status string, took time.Duration)
	ObserveResolution(chain, provider string, fallback bool)
}

// Attempt statuses.
const (
	AttemptAccepted    = "accepted"
	AttemptDegraded    = "degraded"
	AttemptRejected    = "rejected"
	AttemptFailed      = "failed"
	AttemptCircuitOpen = "circuit_open"
	AttemptUnavailable = "unavailable"
)

// Attempt records what happened at one link.
type Attempt struct {
	Provider string        `json:"provider"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Took     time.Duration `json:"took"`
}

// Outcome is the value a chain resolved to, with its provenance.
type Outcome[T any] struct {
	Value    T         `json:"value"`
	Provider string    `json:"provider"`
	Degraded bool      `json:"degraded"`
	Fallback bool      `json:"fallback"`
	Reason   string    `json:"reason,omitempty"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Config for a Chain.
type Config[In, T any] struct {
	Name     string
	Links    []Link[In, T]
	Fallback Fallback[In, T]

	// Accept decides whether a provider's value is good enough. A rejected
	// value moves the chain on. Nil accepts everything.
	Accept func(T) bool

	// Timeout applies to links that set none.
	Timeout  time.Duration
	Observer Observer
	Logger   *log.Logger
}

// Chain is safe for concurrent use; its only mutable state lives in the
// breakers.
type Chain[In, T any] struct {
	name     string
	links    []Link[In, T]
	fallback Fallback[In, T]
	accept   func(T) bool
	observer Observer
	logger   *log.Logger
}

// New validates cfg and builds a chain.
func New[In, T any](cfg Config[In, T]) (*Chain[In, T], error) {
	if cfg.Fallback == nil {
		return nil, fmt.Errorf("chain %q: %w: fallback is required", cfg.Name, core.ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	seen := make(map[string]bool, len(cfg.Links)+1)
	links := make([]Link[In, T], 0, len(cfg.Links))
	for i, l := range cfg.Links {
		if l.Provider == nil {
			return nil, fmt.Errorf("chain %q: %w: link %d has no provider", cfg.Name, core.ErrInvalidInput, i)
		}
		name := l.Provider.Name()
		if seen[name] {
			return nil, fmt.Errorf("chain %q: %w: duplicate provider %q", cfg.Name, core.ErrInvalidInput, name)
		}
		seen[name] = true
		if l.Timeout <= 0 {
			l.Timeout = cfg.Timeout
		}
		links = append(links, l)
	}

	accept := cfg.Accept
	if accept == nil {
		accept = func(T) bool { return true }
	}

	return &Chain[In, T]{
		name:     cfg.Name,
		links:    links,
		fallback: cfg.Fallback,
		accept:   accept,
		observer: cfg.Observer,
		logger:   logging.Component(cfg.Logger, "chain"),
	}, nil
}

// Name of the chain.
func (c *Chain[In, T]) Name() string { return c.name }

// Providers lists link names in rank order, fallback last.
func (c *Chain[In, T]) Providers() []string {
	names := make([]string, 0, len(c.links)+1)
	for _, l := range c.links {
		names = append(names, l.Provider.Name())
	}
	return append(names, c.fallback.Name())
}

// Breakers returns the breakers guarding the links.
func (c *Chain[In, T]) Breakers() []*breaker.Breaker {
	out := make([]*breaker.Breaker, 0, len(c.links))
	for _, l := range c.links {
		if l.Breaker != nil {
			out = append(out, l.Breaker)
		}
	}
	return out
}

// Run tries each link in rank order and returns the first acceptable value,
// or the fallback's estimate. It never returns an error: the only way out
// without a value is a panic in the fallback.
func (c *Chain[In, T]) Run(ctx context.Context, in In) Outcome[T] {
	var attempts []Attempt

	for _, link := range c.links {
		if ctx.Err() != nil {
			break
		}

		a, res := c.try(ctx, link, in)
		attempts = append(attempts, a)
		if c.observer != nil {
			c.observer.ObserveAttempt(c.name, a.Provider, a.Status, a.Took)
		}

		if a.Status != AttemptAccepted && a.Status != AttemptDegraded {
			continue
		}

		if c.observer != nil {
			c.observer.ObserveResolution(c.name, a.Provider, false)
		}
		return Outcome[T]{
			Value:    res.Value,
			Provider: a.Provider,
			Degraded: res.Status == core.StatusDegraded,
			Reason:   res.Reason,
			Attempts: attempts,
		}
	}

	name := c.fallback.Name()
	reason := "no ranked provider produced an acceptable result"
	if len(c.links) == 0 {
		reason = "no ranked providers configured"
	} else if ctx.Err() != nil {
		reason = "context done before a ranked provider succeeded"
	}
	c.logger.Warn("falling back", "chain", c.name, "fallback", name, "attempts", len(attempts))

	start := time.Now()
	v := c.fallback.Estimate(ctx, in)
	took := time.Since(start)

	attempts = append(attempts, Attempt{Provider: name, Status: AttemptDegraded, Took: took})
	if c.observer != nil {
		c.observer.ObserveAttempt(c.name, name, AttemptDegraded, took)
		c.observer.ObserveResolution(c.name, name, true)
	}

	return Outcome[T]{
		Value:    v,
		Provider: name,
		Degraded: true,
		Fallback: true,
		Reason:   reason,
		Attempts: attempts,
	}
}

func (c *Chain[In, T]) try(ctx context.Context, link Link[In, T], in In) (Attempt, core.Result[T]) {
	p := link.Provider
	a := Attempt{Provider: p.Name()}

	if !p.Available() {
		a.Status = AttemptUnavailable
		c.logger.Debug("skipping unavailable provider", "chain", c.name, "provider", a.Provider)
		return a, core.Failure[T](core.Unavailable(a.Provider, nil))
	}

	call := func(ctx context.Context) (core.Result[T], error) {
		cctx, cancel := context.WithTimeout(ctx, link.Timeout)
		defer cancel()

		res := p.Call(cctx, in)
		if res.Status == core.StatusFailure {
			return res, core.FromContext(a.Provider, res.Err)
		}
		return res, nil
	}

	start := time.Now()
	var (
		res core.Result[T]
		err error
	)
	if link.Breaker != nil {
		res, err = breaker.Do(ctx, link.Breaker, call)
	} else {
		res, err = call(ctx)
	}
	a.Took = time.Since(start)

	switch {
	case errors.Is(err, core.ErrCircuitOpen):
		a.Status = AttemptCircuitOpen
		a.Error = err.Error()
		c.logger.Debug("skipping open circuit", "chain", c.name, "provider", a.Provider)
		return a, core.Failure[T](err)
	case err != nil:
		a.Status = AttemptFailed
		a.Error = err.Error()
		c.logger.Warn("provider failed", "chain", c.name, "provider", a.Provider, "kind", core.Classify(err), "err", err)
		return a, core.Failure[T](err)
	}

	if !c.accept(res.Value) {
		a.Status = AttemptRejected
		c.logger.Info("provider result rejected", "chain", c.name, "provider", a.Provider)
		return a, core.Failure[T](core.BadResponse(a.Provider, errors.New("result below quality bar")))
	}

	if res.Status == core.StatusDegraded {
		a.Status = AttemptDegraded
	} else {
		a.Status = AttemptAccepted
	}
	return a, res
}
