package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/pkg/config"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req Request) (*Analysis, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if req.HomeTeam == f.fail {
		return nil, errors.New("boom")
	}
	return &Analysis{ID: req.HomeTeam + "-" + strconv.Itoa(n), HomeTeam: req.HomeTeam, AwayTeam: req.AwayTeam}, nil
}

func (f *fakeAnalyzer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var watchList = []config.Fixture{
	{Home: "Arsenal", Away: "Chelsea"},
	{Home: "Everton", Away: "Liverpool"},
	{Home: "Brentford", Away: "Fulham"},
}

func TestWatcherRunOnce(t *testing.T) {
	fa := &fakeAnalyzer{fail: "Everton"}
	w := NewWatcher(fa, WatcherConfig{Fixtures: watchList, MaxConcurrent: 2})

	var (
		mu       sync.Mutex
		analysed []string
		errs     []error
	)
	w.OnAnalysis(func(a *Analysis) {
		mu.Lock()
		analysed = append(analysed, a.HomeTeam)
		mu.Unlock()
	})
	w.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Everton v Liverpool")

	assert.ElementsMatch(t, []string{"Arsenal", "Brentford"}, analysed)
	require.Len(t, errs, 1)

	a, ok := w.Latest(config.Fixture{Home: "Arsenal", Away: "Chelsea"})
	require.True(t, ok)
	assert.Equal(t, "Chelsea", a.AwayTeam)
	_, ok = w.Latest(config.Fixture{Home: "Everton", Away: "Liverpool"})
	assert.False(t, ok)

	st := w.Status()
	assert.Equal(t, 1, st.Cycles)
	assert.False(t, st.Running)
	assert.Len(t, st.Latest, 2)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, watchList, st.Fixtures)
}

func TestWatcherStartStop(t *testing.T) {
	fa := &fakeAnalyzer{}
	w := NewWatcher(fa, WatcherConfig{Fixtures: watchList, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "second start must fail")

	require.Eventually(t, func() bool { return w.Status().Cycles == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, len(watchList), fa.count())
	assert.Empty(t, w.Status().LastError)

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
}

func TestWatcherStopsWithContext(t *testing.T) {
	w := NewWatcher(&fakeAnalyzer{}, WatcherConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !w.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}
