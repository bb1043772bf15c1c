// Package analysis produces contextual adjustments to the Poisson model
// from LLM providers or a rule-based fallback, and merges two independent
// analyses into a consensus.
package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/phenomenon0/bet-copilot/pkg/resilience/chain"
)

// Sentiment is which side the analysis leans toward.
type Sentiment string

const (
	Positive Sentiment = "POSITIVE" // home favoured
	Neutral  Sentiment = "NEUTRAL"
	Negative Sentiment = "NEGATIVE" // away favoured
)

// ParseSentiment maps free text to a Sentiment, defaulting to Neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToUpper(strings.TrimSpace(s))) {
	case Positive:
		return Positive
	case Negative:
		return Negative
	default:
		return Neutral
	}
}

// Adjustment bounds for lambda multipliers.
const (
	MinAdjustment = 0.8
	MaxAdjustment = 1.2
)

// ContextualAnalysis is the interchange format between every analysis
// provider and the merger. Treat values as immutable; Normalize and the
// merger always return copies.
type ContextualAnalysis struct {
	HomeTeam             string    `json:"home_team"`
	AwayTeam             string    `json:"away_team"`
	Confidence           float64   `json:"confidence"`
	LambdaAdjustmentHome float64   `json:"lambda_adjustment_home"`
	LambdaAdjustmentAway float64   `json:"lambda_adjustment_away"`
	KeyFactors           []string  `json:"key_factors"`
	Sentiment            Sentiment `json:"sentiment"`
	Reasoning            string    `json:"reasoning"`
	Provider             string    `json:"provider,omitempty"`
}

// Normalize returns a copy with every field forced into its domain, and a
// note for each correction made.
func (a ContextualAnalysis) Normalize() (ContextualAnalysis, []string) {
	var notes []string
	out := a
	out.KeyFactors = append([]string(nil), a.KeyFactors...)

	if math.IsNaN(out.Confidence) || out.Confidence < 0 || out.Confidence > 1 {
		notes = append(notes, fmt.Sprintf("confidence %.2f out of range", out.Confidence))
		out.Confidence = clampFloat(out.Confidence, 0, 1)
	}
	if fixed, ok := clampAdjustment(out.LambdaAdjustmentHome); !ok {
		notes = append(notes, fmt.Sprintf("home adjustment %.2f clamped to %.2f", out.LambdaAdjustmentHome, fixed))
		out.LambdaAdjustmentHome = fixed
	}
	if fixed, ok := clampAdjustment(out.LambdaAdjustmentAway); !ok {
		notes = append(notes, fmt.Sprintf("away adjustment %.2f clamped to %.2f", out.LambdaAdjustmentAway, fixed))
		out.LambdaAdjustmentAway = fixed
	}
	switch out.Sentiment {
	case Positive, Negative, Neutral:
	default:
		notes = append(notes, fmt.Sprintf("unknown sentiment %q", out.Sentiment))
		out.Sentiment = ParseSentiment(string(out.Sentiment))
	}
	return out, notes
}

func (a ContextualAnalysis) clone() ContextualAnalysis {
	out := a
	out.KeyFactors = append([]string(nil), a.KeyFactors...)
	return out
}

func clampAdjustment(v float64) (float64, bool) {
	if math.IsNaN(v) || v <= 0 {
		return 1.0, false
	}
	c := clampFloat(v, MinAdjustment, MaxAdjustment)
	return c, c == v
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// NeutralAnalysis applies no adjustment at middling confidence.
func NeutralAnalysis(home, away, reason string) ContextualAnalysis {
	if reason == "" {
		reason = "No contextual analysis available"
	}
	return ContextualAnalysis{
		HomeTeam:             home,
		AwayTeam:             away,
		Confidence:           0.5,
		LambdaAdjustmentHome: 1.0,
		LambdaAdjustmentAway: 1.0,
		KeyFactors:           []string{},
		Sentiment:            Neutral,
		Reasoning:            reason,
		Provider:             "neutral",
	}
}

// GoodEnough is the acceptance rule for provider analyses: confident, or
// actually adjusting something.
func GoodEnough(a ContextualAnalysis) bool {
	return a.Confidence > 0.5 || a.LambdaAdjustmentHome != 1.0
}

// MatchContext is what analysis providers see of a fixture. H2H holds
// previous results from the home side's perspective: "H", "D" or "A".
type MatchContext struct {
	HomeTeam          string   `json:"home_team"`
	AwayTeam          string   `json:"away_team"`
	HomeForm          string   `json:"home_form"`
	AwayForm          string   `json:"away_form"`
	H2H               []string `json:"h2h,omitempty"`
	AdditionalContext string   `json:"additional_context,omitempty"`
}

// Provider is any analysis backend.
type Provider = chain.Provider[MatchContext, ContextualAnalysis]
