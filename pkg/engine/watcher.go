package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/phenomenon0/bet-copilot/pkg/config"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
)

// Analyzer is what the watcher drives; *Aggregator satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Analysis, error)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Fixtures      []config.Fixture
	Interval      time.Duration // Default: 15m
	MaxConcurrent int           // Default: 3
	Logger        *log.Logger
}

// WatcherStatus is a point-in-time view of the watch loop.
type WatcherStatus struct {
	Running   bool             `json:"running"`
	Fixtures  []config.Fixture `json:"fixtures"`
	Cycles    int              `json:"cycles"`
	LastCycle time.Time        `json:"last_cycle,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	// Latest maps "Home v Away" to the newest analysis ID.
	Latest map[string]string `json:"latest"`
}

// Watcher re-analyses a fixed list of fixtures on an interval.
type Watcher struct {
	analyzer      Analyzer
	fixtures      []config.Fixture
	interval      time.Duration
	maxConcurrent int
	logger        *log.Logger

	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	cycles    int
	lastCycle time.Time
	lastError string
	latest    map[string]*Analysis

	// Callbacks
	onAnalysis func(*Analysis)
	onError    func(error)
}

// NewWatcher creates a watcher.
func NewWatcher(analyzer Analyzer, cfg WatcherConfig) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	return &Watcher{
		analyzer:      analyzer,
		fixtures:      append([]config.Fixture(nil), cfg.Fixtures...),
		interval:      cfg.Interval,
		maxConcurrent: cfg.MaxConcurrent,
		logger:        logging.Component(cfg.Logger, "watcher"),
		stopCh:        make(chan struct{}),
		latest:        make(map[string]*Analysis),
	}
}

// OnAnalysis sets a callback for finished analyses.
func (w *Watcher) OnAnalysis(fn func(*Analysis)) {
	w.onAnalysis = fn
}

// OnError sets a callback for errors.
func (w *Watcher) OnError(fn func(error)) {
	w.onError = fn
}

// Start runs one cycle immediately and then one per interval until ctx is
// done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.mu.Unlock()

	go w.loop(ctx, stop)
	return nil
}

// Stop stops the watch loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning returns true if the watch loop is running.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// RunOnce analyses every fixture, at most MaxConcurrent at a time. A
// failing fixture does not stop the others; the first error is returned.
func (w *Watcher) RunOnce(ctx context.Context) error {
	var (
		g        errgroup.Group
		errOnce  sync.Once
		firstErr error
	)
	g.SetLimit(w.maxConcurrent)

	for _, f := range w.fixtures {
		f := f
		g.Go(func() error {
			a, err := w.analyzer.Analyze(ctx, Request{HomeTeam: f.Home, AwayTeam: f.Away})
			if err != nil {
				err = fmt.Errorf("%s v %s: %w", f.Home, f.Away, err)
				errOnce.Do(func() { firstErr = err })
				w.handleError(err)
				return nil
			}
			w.mu.Lock()
			w.latest[fixtureKey(f)] = a
			w.mu.Unlock()
			if w.onAnalysis != nil {
				w.onAnalysis(a)
			}
			return nil
		})
	}
	_ = g.Wait()

	w.mu.Lock()
	w.cycles++
	w.lastCycle = time.Now()
	if firstErr != nil {
		w.lastError = firstErr.Error()
	} else {
		w.lastError = ""
	}
	w.mu.Unlock()
	return firstErr
}

// Latest returns the newest analysis of a fixture.
func (w *Watcher) Latest(f config.Fixture) (*Analysis, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.latest[fixtureKey(f)]
	return a, ok
}

// Status returns the watch loop state.
func (w *Watcher) Status() WatcherStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	latest := make(map[string]string, len(w.latest))
	for k, a := range w.latest {
		latest[k] = a.ID
	}
	return WatcherStatus{
		Running:   w.running,
		Fixtures:  append([]config.Fixture(nil), w.fixtures...),
		Cycles:    w.cycles,
		LastCycle: w.lastCycle,
		LastError: w.lastError,
		Latest:    latest,
	}
}

func (w *Watcher) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Watcher) cycle(ctx context.Context) {
	start := time.Now()
	err := w.RunOnce(ctx)
	w.logger.Info("watch cycle complete", "fixtures", len(w.fixtures), "took", time.Since(start), "err", err)
}

func (w *Watcher) handleError(err error) {
	w.logger.Error("watch error", "err", err)
	if w.onError != nil {
		w.onError(err)
	}
}

func fixtureKey(f config.Fixture) string {
	return f.Home + " v " + f.Away
}
