// Package metrics provides Prometheus metrics for the betting copilot.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
)

// CopilotMetrics collects provider, breaker and analysis metrics. It
// satisfies chain.Observer.
type CopilotMetrics struct {
	registry *prometheus.Registry

	// Provider chain metrics
	ProviderAttempts *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ChainResolutions *prometheus.CounterVec

	// Breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec

	// Analysis metrics
	AnalysesTotal      *prometheus.CounterVec
	AnalysisDuration   *prometheus.HistogramVec
	StageLatency       *prometheus.HistogramVec
	AnalysisAgreement  *prometheus.HistogramVec
	AnalysisConfidence *prometheus.HistogramVec

	// Value bet metrics
	ValueBetsTotal   *prometheus.CounterVec
	ValueBetEV       *prometheus.HistogramVec
	RecommendedStake *prometheus.HistogramVec
	StakeAmount      *prometheus.HistogramVec

	// Upstream budget metrics
	LLMCost            *prometheus.GaugeVec
	LLMTokens          *prometheus.GaugeVec
	OddsQuotaRemaining *prometheus.GaugeVec
	WatchedFixtures    *prometheus.GaugeVec
}

// NewCopilotMetrics creates a collector on its own registry.
func NewCopilotMetrics() *CopilotMetrics {
	registry := prometheus.NewRegistry()

	m := &CopilotMetrics{
		registry: registry,

		ProviderAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betcopilot_provider_attempts_total",
				Help: "Provider attempts by chain and outcome",
			},
			[]string{"chain", "provider", "status"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_provider_latency_seconds",
				Help:    "Provider call latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"chain", "provider"},
		),
		ChainResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betcopilot_chain_resolutions_total",
				Help: "Chain runs by the provider that produced the value",
			},
			[]string{"chain", "provider", "fallback"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betcopilot_breaker_state",
				Help: "Circuit state per provider (0=closed, 1=open, 2=half_open)",
			},
			[]string{"provider"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betcopilot_breaker_transitions_total",
				Help: "Circuit state transitions",
			},
			[]string{"provider", "from", "to"},
		),

		AnalysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betcopilot_analyses_total",
				Help: "Match analyses by result quality",
			},
			[]string{"status"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_analysis_duration_seconds",
				Help:    "End-to-end match analysis duration",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_stage_latency_seconds",
				Help:    "Individual analysis stage latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"stage"},
		),
		AnalysisAgreement: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_analysis_agreement",
				Help:    "Agreement between AI analysts (0-1)",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{},
		),
		AnalysisConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_analysis_confidence",
				Help:    "Contextual analysis confidence (0-1)",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"provider"},
		),

		ValueBetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betcopilot_value_bets_total",
				Help: "Headline value bets by outcome and risk",
			},
			[]string{"outcome", "risk"},
		),
		ValueBetEV: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_value_bet_ev",
				Help:    "Expected value of headline value bets",
				Buckets: []float64{0, 0.02, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1},
			},
			[]string{"outcome"},
		),
		RecommendedStake: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_recommended_stake_pct",
				Help:    "Recommended stake as a percentage of bankroll",
				Buckets: prometheus.LinearBuckets(0, 0.5, 11), // 0 to 5%
			},
			[]string{"risk"},
		),
		StakeAmount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betcopilot_stake_amount",
				Help:    "Recommended stake in bankroll currency",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{},
		),

		LLMCost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betcopilot_llm_cost_usd",
				Help: "Estimated cumulative LLM spend in USD",
			},
			[]string{"provider"},
		),
		LLMTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betcopilot_llm_tokens",
				Help: "Cumulative LLM tokens",
			},
			[]string{"provider", "kind"},
		),
		OddsQuotaRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betcopilot_odds_quota_remaining",
				Help: "Requests left on the odds feed quota",
			},
			[]string{},
		),
		WatchedFixtures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betcopilot_watched_fixtures",
				Help: "Number of fixtures on the watch list",
			},
			[]string{},
		),
	}

	m.registerAll()

	return m
}

func (m *CopilotMetrics) registerAll() {
	m.registry.MustRegister(
		m.ProviderAttempts,
		m.ProviderLatency,
		m.ChainResolutions,
		m.BreakerState,
		m.BreakerTransitions,
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.StageLatency,
		m.AnalysisAgreement,
		m.AnalysisConfidence,
		m.ValueBetsTotal,
		m.ValueBetEV,
		m.RecommendedStake,
		m.StakeAmount,
		m.LLMCost,
		m.LLMTokens,
		m.OddsQuotaRemaining,
		m.WatchedFixtures,
	)
}

// Registry returns the prometheus registry.
func (m *CopilotMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *CopilotMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// --- Helper methods for recording metrics ---

// ObserveAttempt records one provider attempt.
func (m *CopilotMetrics) ObserveAttempt(chain, provider, status string, took time.Duration) {
	m.ProviderAttempts.WithLabelValues(chain, provider, status).Inc()
	if took > 0 {
		m.ProviderLatency.WithLabelValues(chain, provider).Observe(took.Seconds())
	}
}

// ObserveResolution records which provider a chain run resolved to.
func (m *CopilotMetrics) ObserveResolution(chain, provider string, fallback bool) {
	m.ChainResolutions.WithLabelValues(chain, provider, strconv.FormatBool(fallback)).Inc()
}

// OnBreakerStateChange is a breaker.Config.OnStateChange hook.
func (m *CopilotMetrics) OnBreakerStateChange(name string, from, to breaker.State) {
	m.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// TrackBreaker publishes a breaker's current state.
func (m *CopilotMetrics) TrackBreaker(b *breaker.Breaker) {
	m.BreakerState.WithLabelValues(b.Name()).Set(float64(b.State()))
}

// RecordAnalysis records a finished match analysis.
func (m *CopilotMetrics) RecordAnalysis(status string, durationSec, agreement float64) {
	m.AnalysesTotal.WithLabelValues(status).Inc()
	if durationSec > 0 {
		m.AnalysisDuration.WithLabelValues().Observe(durationSec)
	}
	if agreement >= 0 {
		m.AnalysisAgreement.WithLabelValues().Observe(agreement)
	}
}

// RecordConfidence records a contextual analysis confidence.
func (m *CopilotMetrics) RecordConfidence(provider string, confidence float64) {
	m.AnalysisConfidence.WithLabelValues(provider).Observe(confidence)
}

// RecordStage records a stage execution.
func (m *CopilotMetrics) RecordStage(stage string, durationSec float64) {
	m.StageLatency.WithLabelValues(stage).Observe(durationSec)
}

// RecordValueBet records a headline value bet.
func (m *CopilotMetrics) RecordValueBet(outcome, risk string, ev, stakePct float64, amount decimal.Decimal) {
	m.ValueBetsTotal.WithLabelValues(outcome, risk).Inc()
	m.ValueBetEV.WithLabelValues(outcome).Observe(ev)
	m.RecommendedStake.WithLabelValues(risk).Observe(stakePct)
	if amount.IsPositive() {
		m.StakeAmount.WithLabelValues().Observe(DecimalToFloat64(amount))
	}
}

// UpdateLLMUsage publishes a provider's cumulative LLM usage.
func (m *CopilotMetrics) UpdateLLMUsage(provider string, promptTokens, completionTokens int64, costUSD float64) {
	m.LLMCost.WithLabelValues(provider).Set(costUSD)
	m.LLMTokens.WithLabelValues(provider, "prompt").Set(float64(promptTokens))
	m.LLMTokens.WithLabelValues(provider, "completion").Set(float64(completionTokens))
}

// UpdateOddsQuota publishes the odds feed's remaining quota.
func (m *CopilotMetrics) UpdateOddsQuota(remaining int64) {
	if remaining >= 0 {
		m.OddsQuotaRemaining.WithLabelValues().Set(float64(remaining))
	}
}

// UpdateWatchedFixtures updates the watch list size.
func (m *CopilotMetrics) UpdateWatchedFixtures(count int) {
	m.WatchedFixtures.WithLabelValues().Set(float64(count))
}

// --- Decimal helpers ---

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *CopilotMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *CopilotMetrics {
	once.Do(func() {
		defaultMetrics = NewCopilotMetrics()
	})
	return defaultMetrics
}
