package analysis

import (
	"fmt"
	"math"
	"strings"
)

// CollaborativeAnalysis is the merged view of up to two independent
// analyses.
type CollaborativeAnalysis struct {
	Consensus        ContextualAnalysis  `json:"consensus"`
	Primary          *ContextualAnalysis `json:"primary,omitempty"`
	Secondary        *ContextualAnalysis `json:"secondary,omitempty"`
	AgreementScore   float64             `json:"agreement_score"`
	ConfidenceBoost  float64             `json:"confidence_boost"`
	DivergencePoints []string            `json:"divergence_points"`
	Providers        []string            `json:"providers"`
	Degraded         bool                `json:"degraded"`
	Reason           string              `json:"reason,omitempty"`
}

// MergerConfig tunes consensus building.
type MergerConfig struct {
	// PrimaryLabel and SecondaryLabel head the combined reasoning.
	PrimaryLabel   string
	SecondaryLabel string

	MaxKeyFactors int
	// Adjustments further apart than this are reported as divergent.
	DivergenceThreshold float64
	// Adjustment distance at which similarity reaches zero.
	SimilarityFalloff float64
	// Confidence added at full agreement.
	MaxBoost float64
}

// DefaultMergerConfig returns the standard merge parameters.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{
		PrimaryLabel:        "Tactical perspective",
		SecondaryLabel:      "Statistical perspective",
		MaxKeyFactors:       5,
		DivergenceThreshold: 0.1,
		SimilarityFalloff:   0.4,
		MaxBoost:            0.2,
	}
}

// Merger combines two analyses. It is a pure function of its inputs.
type Merger struct {
	cfg MergerConfig
}

// NewMerger creates a merger; zero fields take defaults.
func NewMerger(cfg MergerConfig) *Merger {
	def := DefaultMergerConfig()
	if cfg.PrimaryLabel == "" {
		cfg.PrimaryLabel = def.PrimaryLabel
	}
	if cfg.SecondaryLabel == "" {
		cfg.SecondaryLabel = def.SecondaryLabel
	}
	if cfg.MaxKeyFactors <= 0 {
		cfg.MaxKeyFactors = def.MaxKeyFactors
	}
	if cfg.DivergenceThreshold <= 0 {
		cfg.DivergenceThreshold = def.DivergenceThreshold
	}
	if cfg.SimilarityFalloff <= 0 {
		cfg.SimilarityFalloff = def.SimilarityFalloff
	}
	if cfg.MaxBoost <= 0 {
		cfg.MaxBoost = def.MaxBoost
	}
	return &Merger{cfg: cfg}
}

// Merge builds the consensus. With one analysis it is passed through with
// full agreement; with none the result is neutral with zero agreement.
func (m *Merger) Merge(home, away string, a, b *ContextualAnalysis) CollaborativeAnalysis {
	switch {
	case a == nil && b == nil:
		return CollaborativeAnalysis{
			Consensus:        NeutralAnalysis(home, away, "All analysis providers failed"),
			DivergencePoints: []string{},
			Providers:        []string{},
			Degraded:         true,
			Reason:           "no analysis available",
		}
	case a == nil:
		return single(b, false)
	case b == nil:
		return single(a, true)
	}

	ca, cb := a.clone(), b.clone()

	wa, wb := 0.5, 0.5
	if total := ca.Confidence + cb.Confidence; total > 0 {
		wa = ca.Confidence / total
		wb = cb.Confidence / total
	}

	confidence := ca.Confidence*wa + cb.Confidence*wb
	homeAdj := ca.LambdaAdjustmentHome*wa + cb.LambdaAdjustmentHome*wb
	awayAdj := ca.LambdaAdjustmentAway*wa + cb.LambdaAdjustmentAway*wb

	// The sentiment of the strictly more confident side wins; ties go to b.
	sentiment := cb.Sentiment
	if ca.Confidence > cb.Confidence {
		sentiment = ca.Sentiment
	}

	agreement := m.agreement(ca, cb)
	boost := agreement * m.cfg.MaxBoost

	consensus := ContextualAnalysis{
		HomeTeam:             ca.HomeTeam,
		AwayTeam:             ca.AwayTeam,
		Confidence:           math.Min(1.0, confidence+boost),
		LambdaAdjustmentHome: homeAdj,
		LambdaAdjustmentAway: awayAdj,
		KeyFactors:           m.mergeFactors(ca.KeyFactors, cb.KeyFactors),
		Sentiment:            sentiment,
		Reasoning:            m.mergeReasoning(ca.Reasoning, cb.Reasoning),
		Provider:             joinProviders(ca.Provider, cb.Provider),
	}

	return CollaborativeAnalysis{
		Consensus:        consensus,
		Primary:          &ca,
		Secondary:        &cb,
		AgreementScore:   agreement,
		ConfidenceBoost:  boost,
		DivergencePoints: m.divergence(ca, cb),
		Providers:        []string{ca.Provider, cb.Provider},
	}
}

func single(a *ContextualAnalysis, primary bool) CollaborativeAnalysis {
	c := a.clone()
	out := CollaborativeAnalysis{
		Consensus:        c,
		AgreementScore:   1.0,
		DivergencePoints: []string{},
		Providers:        []string{c.Provider},
	}
	cp := c
	if primary {
		out.Primary = &cp
	} else {
		out.Secondary = &cp
	}
	return out
}

// agreement is a weighted similarity: 40% home adjustment, 40% away
// adjustment, 20% sentiment.
func (m *Merger) agreement(a, b ContextualAnalysis) float64 {
	sim := func(x, y float64) float64 {
		return math.Max(0, 1-math.Abs(x-y)/m.cfg.SimilarityFalloff)
	}
	sentiment := 0.0
	if a.Sentiment == b.Sentiment {
		sentiment = 1.0
	}
	score := 0.4*sim(a.LambdaAdjustmentHome, b.LambdaAdjustmentHome) +
		0.4*sim(a.LambdaAdjustmentAway, b.LambdaAdjustmentAway) +
		0.2*sentiment
	return math.Round(score*100) / 100
}

func (m *Merger) divergence(a, b ContextualAnalysis) []string {
	points := []string{}
	na, nb := labelOr(a.Provider, "A"), labelOr(b.Provider, "B")

	if math.Abs(a.LambdaAdjustmentHome-b.LambdaAdjustmentHome) > m.cfg.DivergenceThreshold {
		points = append(points, fmt.Sprintf("Home adjustment: %s=%.2f, %s=%.2f", na, a.LambdaAdjustmentHome, nb, b.LambdaAdjustmentHome))
	}
	if math.Abs(a.LambdaAdjustmentAway-b.LambdaAdjustmentAway) > m.cfg.DivergenceThreshold {
		points = append(points, fmt.Sprintf("Away adjustment: %s=%.2f, %s=%.2f", na, a.LambdaAdjustmentAway, nb, b.LambdaAdjustmentAway))
	}
	if a.Sentiment != b.Sentiment {
		points = append(points, fmt.Sprintf("Sentiment: %s=%s, %s=%s", na, a.Sentiment, nb, b.Sentiment))
	}
	return points
}

func joinProviders(a, b string) string {
	if a == b {
		return a
	}
	return a + "+" + b
}

func labelOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// mergeFactors de-duplicates case-insensitively, keeping first-seen order.
func (m *Merger) mergeFactors(a, b []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, m.cfg.MaxKeyFactors)
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			key := strings.ToLower(strings.TrimSpace(f))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
			if len(out) == m.cfg.MaxKeyFactors {
				return out
			}
		}
	}
	return out
}

func (m *Merger) mergeReasoning(a, b string) string {
	switch {
	case a == b:
		return a
	case b == "":
		return a
	case a == "":
		return b
	case len(a) > 2*len(b):
		return a + "\n\nSecondary analysis confirms key trends."
	case len(b) > 2*len(a):
		return b + "\n\nCross-validated with tactical analysis."
	default:
		return fmt.Sprintf("%s: %s\n\n%s: %s", m.cfg.PrimaryLabel, a, m.cfg.SecondaryLabel, b)
	}
}
