// Package breaker implements a per-provider circuit breaker.
//
// A breaker starts closed. After FailureThreshold consecutive failures it
// opens and rejects calls without invoking the operation. Once Timeout has
// elapsed since the last failure the next call is admitted as a half-open
// trial: SuccessThreshold successful trials close the circuit, a single
// failed trial reopens it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
)

// State of a circuit.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{Closed, Open, HalfOpen} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown breaker state %q", b)
}

// OpenError is returned when a call is rejected without being attempted.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open (retry after %s)", e.Name, e.RetryAfter.Round(time.Millisecond))
}

// Is lets errors.Is(err, core.ErrCircuitOpen) match.
func (e *OpenError) Is(target error) bool {
	return target == core.ErrCircuitOpen
}

// Config for a Breaker.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)
	// Now is the clock; tests inject a fake one.
	Now    func() time.Time
	Logger *log.Logger
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          60 * time.Second,
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name        string        `json:"name"`
	State       State         `json:"state"`
	Failures    int           `json:"failures"`
	Successes   int           `json:"successes"`
	LastFailure time.Time     `json:"last_failure,omitempty"`
	RetryAfter  time.Duration `json:"retry_after"`
}

// Breaker guards calls to one provider. All state lives behind a single
// mutex so transitions are linearizable under concurrent callers.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	onChange         func(name string, from, to State)
	now              func() time.Time
	logger           *log.Logger

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	trial       bool // a half-open trial is in flight
}

// New creates a breaker. Zero fields in cfg take the defaults.
func New(cfg *Config) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return &Breaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		onChange:         cfg.OnStateChange,
		now:              cfg.Now,
		logger:           logging.Component(cfg.Logger, "breaker"),
		state:            Closed,
	}
}

// Name returns the provider name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state. An open circuit whose timeout has
// elapsed still reports Open until a call is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether calls are currently being rejected.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Open && b.now().Sub(b.lastFailure) < b.timeout
}

// Snapshot returns the full breaker state for status reports.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Name:        b.name,
		State:       b.state,
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
	}
	if b.state == Open {
		if wait := b.timeout - b.now().Sub(b.lastFailure); wait > 0 {
			s.RetryAfter = wait
		}
	}
	return s
}

// Call runs op if the circuit admits it and records the outcome. A rejected
// call returns *OpenError without invoking op. A panic in op counts as a
// failure and is re-raised.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			b.release(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	err := op(ctx)
	b.release(err)
	return err
}

// Do is the value-returning form of Call.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		out = v
		return err
	})
	return out, err
}

// ForceOpen opens the circuit as if a failure had just happened. Used by
// operators, for example when a provider announces a rate-limit window.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	from := b.state
	b.state = Open
	b.lastFailure = b.now()
	b.successes = 0
	b.trial = false
	b.mu.Unlock()

	b.logger.Warn("circuit forced open", "name", b.name)
	b.notify(from, Open)
}

// ForceClose closes the circuit and resets all counters.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.trial = false
	b.mu.Unlock()

	b.logger.Info("circuit forced closed", "name", b.name)
	b.notify(from, Closed)
}

// acquire decides whether a call may proceed.
func (b *Breaker) acquire() error {
	b.mu.Lock()

	switch b.state {
	case Open:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.timeout {
			err := &OpenError{Name: b.name, RetryAfter: b.timeout - elapsed}
			b.mu.Unlock()
			return err
		}
		b.state = HalfOpen
		b.successes = 0
		b.trial = true
		b.mu.Unlock()

		b.logger.Info("circuit half-open, admitting trial", "name", b.name)
		b.notify(Open, HalfOpen)
		return nil

	case HalfOpen:
		if b.trial {
			b.mu.Unlock()
			return &OpenError{Name: b.name}
		}
		b.trial = true
		b.mu.Unlock()
		return nil

	default:
		b.mu.Unlock()
		return nil
	}
}

// release records the outcome of an admitted call. Cancellation by the
// caller says nothing about the provider and is not counted.
func (b *Breaker) release(err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		b.mu.Lock()
		b.trial = false
		b.mu.Unlock()
		return
	}
	if err != nil {
		b.onFailure(err)
		return
	}
	b.onSuccess()
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	from := b.state
	b.failures = 0
	b.trial = false

	if b.state == HalfOpen {
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.successes = 0
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.logger.Info("circuit closed", "name", b.name)
		b.notify(from, to)
	}
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.lastFailure = b.now()
	b.trial = false

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.successes = 0
	case Closed:
		if b.failures >= b.failureThreshold {
			b.state = Open
		}
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to {
		b.logger.Warn("circuit opened", "name", b.name, "failures", failures, "err", err)
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil && from != to {
		b.onChange(b.name, from, to)
	}
}
