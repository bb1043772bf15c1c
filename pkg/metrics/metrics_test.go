package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
)

func TestObserverCounts(t *testing.T) {
	m := NewCopilotMetrics()

	m.ObserveAttempt("stats", "api-football", "failed", 120*time.Millisecond)
	m.ObserveAttempt("stats", "api-football", "failed", 80*time.Millisecond)
	m.ObserveAttempt("stats", "estimate", "degraded", 0)
	m.ObserveResolution("stats", "estimate", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("stats", "api-football", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainResolutions.WithLabelValues("stats", "estimate", "true")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderLatency))
}

func TestBreakerHook(t *testing.T) {
	m := NewCopilotMetrics()
	b := breaker.New(&breaker.Config{Name: "odds-api", OnStateChange: m.OnBreakerStateChange})

	m.TrackBreaker(b)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("odds-api")))

	b.ForceOpen()
	assert.Equal(t, float64(breaker.Open), testutil.ToFloat64(m.BreakerState.WithLabelValues("odds-api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("odds-api", "closed", "open")))

	b.ForceClose()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("odds-api")))
}

func TestRecordValueBetAndHandler(t *testing.T) {
	m := NewCopilotMetrics()
	m.RecordAnalysis("ok", 1.5, 0.8)
	m.RecordValueBet("home_win", "MEDIUM", 0.12, 2.5, decimal.NewFromInt(25))
	m.UpdateLLMUsage("gemini", 1200, 300, 0.0042)
	m.UpdateOddsQuota(-1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValueBetsTotal.WithLabelValues("home_win", "MEDIUM")))
	assert.Equal(t, 0.0042, testutil.ToFloat64(m.LLMCost.WithLabelValues("gemini")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.OddsQuotaRemaining))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "betcopilot_analyses_total"))
}

func TestDecimalToFloat64(t *testing.T) {
	assert.Equal(t, 12.5, DecimalToFloat64(decimal.RequireFromString("12.50")))
}
