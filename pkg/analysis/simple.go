package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/football"
)

var injuryKeywords = []string{"injured", "injury", "injuries", "ruled out", "sidelined", "lesionado", "lesionada", "lesión"}

// SimpleAnalyzer derives adjustments from form strings, head-to-head
// results and injury keywords. It never fails and serves as the final
// fallback of every analysis chain.
type SimpleAnalyzer struct{}

// NewSimpleAnalyzer creates the rule-based analyzer.
func NewSimpleAnalyzer() *SimpleAnalyzer { return &SimpleAnalyzer{} }

func (s *SimpleAnalyzer) Name() string    { return "simple" }
func (s *SimpleAnalyzer) Available() bool { return true }

// Call wraps Estimate so the analyzer can also sit inside a chain as a
// ranked provider.
func (s *SimpleAnalyzer) Call(ctx context.Context, mc MatchContext) core.Result[ContextualAnalysis] {
	return core.Success(s.Estimate(ctx, mc))
}

// Estimate analyzes the fixture.
func (s *SimpleAnalyzer) Estimate(_ context.Context, mc MatchContext) ContextualAnalysis {
	homeScore := FormScore(mc.HomeForm)
	awayScore := FormScore(mc.AwayForm)
	h2h := H2HFactor(mc.H2H)
	homeInjuries, awayInjuries := countInjuries(mc)

	homeAdj, awayAdj := 1.0, 1.0
	var factors []string

	switch diff := homeScore - awayScore; {
	case diff > 0.3:
		homeAdj += 0.1
		awayAdj -= 0.05
		factors = append(factors, fmt.Sprintf("%s in better recent form", mc.HomeTeam))
	case diff < -0.3:
		homeAdj -= 0.05
		awayAdj += 0.1
		factors = append(factors, fmt.Sprintf("%s in better recent form", mc.AwayTeam))
	}

	switch {
	case h2h > 0.2:
		homeAdj += 0.05
		factors = append(factors, fmt.Sprintf("%s dominates the head-to-head record", mc.HomeTeam))
	case h2h < -0.2:
		awayAdj += 0.05
		factors = append(factors, fmt.Sprintf("%s dominates the head-to-head record", mc.AwayTeam))
	}

	if homeInjuries > 0 {
		homeAdj -= 0.05 * float64(homeInjuries)
		factors = append(factors, fmt.Sprintf("%s has injured players", mc.HomeTeam))
	}
	if awayInjuries > 0 {
		awayAdj -= 0.05 * float64(awayInjuries)
		factors = append(factors, fmt.Sprintf("%s has injured players", mc.AwayTeam))
	}

	homeAdj = clampFloat(homeAdj, MinAdjustment, MaxAdjustment)
	awayAdj = clampFloat(awayAdj, MinAdjustment, MaxAdjustment)

	sentiment := Neutral
	switch {
	case homeAdj > awayAdj+0.05:
		sentiment = Positive
	case awayAdj > homeAdj+0.05:
		sentiment = Negative
	}

	confidence := 0.6
	if len(mc.H2H) > 0 {
		confidence += 0.1
	}
	if strings.TrimSpace(mc.AdditionalContext) != "" {
		confidence += 0.1
	}
	confidence = min(confidence, 0.8)

	if len(factors) == 0 {
		factors = []string{"Analysis based on recent form"}
	}

	return ContextualAnalysis{
		HomeTeam:             mc.HomeTeam,
		AwayTeam:             mc.AwayTeam,
		Confidence:           football.Round2(confidence),
		LambdaAdjustmentHome: football.Round2(homeAdj),
		LambdaAdjustmentAway: football.Round2(awayAdj),
		KeyFactors:           factors,
		Sentiment:            sentiment,
		Reasoning:            simpleReasoning(mc, homeScore, awayScore, h2h, homeInjuries, awayInjuries),
		Provider:             s.Name(),
	}
}

// FormScore maps a W/D/L string to [0,1] by points won over points
// available. An empty form is neutral.
func FormScore(form string) float64 {
	form = strings.ToUpper(strings.TrimSpace(form))
	if form == "" {
		return 0.5
	}
	points := 0
	for _, r := range form {
		switch r {
		case 'W':
			points += 3
		case 'D':
			points++
		}
	}
	return float64(points) / float64(len(form)*3)
}

// H2HFactor is (home wins - away wins) / meetings, in [-1, 1].
func H2HFactor(results []string) float64 {
	if len(results) == 0 {
		return 0
	}
	home, away := 0, 0
	for _, r := range results {
		switch strings.ToUpper(strings.TrimSpace(r)) {
		case "H":
			home++
		case "A":
			away++
		}
	}
	return float64(home-away) / float64(len(results))
}

// countInjuries attributes each sentence that mentions an injury to the
// away side when it names the away team, and to the home side otherwise.
// Each side counts at most once.
func countInjuries(mc MatchContext) (home, away int) {
	text := strings.ToLower(mc.AdditionalContext)
	if text == "" {
		return 0, 0
	}
	awayName := football.NormalizeName(mc.AwayTeam)
	homeName := football.NormalizeName(mc.HomeTeam)

	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == ';' || r == '\n' }) {
		if !containsAny(sentence, injuryKeywords) {
			continue
		}
		norm := football.NormalizeName(sentence)
		mentionsAway := awayName != "" && strings.Contains(norm, awayName)
		mentionsHome := homeName != "" && strings.Contains(norm, homeName)
		if mentionsAway && !mentionsHome {
			away = 1
		} else {
			home = 1
		}
	}
	return home, away
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func simpleReasoning(mc MatchContext, homeScore, awayScore, h2h float64, homeInjuries, awayInjuries int) string {
	var parts []string

	switch {
	case homeScore > awayScore+0.2:
		parts = append(parts, fmt.Sprintf("%s shows better recent form (%.0f%% vs %.0f%%)", mc.HomeTeam, homeScore*100, awayScore*100))
	case awayScore > homeScore+0.2:
		parts = append(parts, fmt.Sprintf("%s shows better recent form (%.0f%% vs %.0f%%)", mc.AwayTeam, awayScore*100, homeScore*100))
	default:
		parts = append(parts, fmt.Sprintf("Both teams in similar form (%.0f%% vs %.0f%%)", homeScore*100, awayScore*100))
	}

	switch {
	case h2h > 0.2:
		parts = append(parts, fmt.Sprintf("%s dominates recent meetings", mc.HomeTeam))
	case h2h < -0.2:
		parts = append(parts, fmt.Sprintf("%s dominates recent meetings", mc.AwayTeam))
	}

	if homeInjuries > 0 {
		parts = append(parts, fmt.Sprintf("Key absences for %s", mc.HomeTeam))
	}
	if awayInjuries > 0 {
		parts = append(parts, fmt.Sprintf("Key absences for %s", mc.AwayTeam))
	}

	parts = append(parts, "(rule-based heuristic, no AI)")
	return strings.Join(parts, ". ") + "."
}
