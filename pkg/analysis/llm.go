package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/tools"
)

// Completer is the slice of an LLM client the analyzer needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

const defaultSystemPrompt = `You are a professional football analyst. You assess how context (form, head-to-head, injuries, news) should adjust a Poisson goal model.

Respond ONLY with a JSON object with these keys:
{
  "home_adjustment": <multiplier for home expected goals, between 0.8 and 1.2>,
  "away_adjustment": <multiplier for away expected goals, between 0.8 and 1.2>,
  "confidence": <0.0 to 1.0>,
  "key_factors": [<up to 5 short strings>],
  "sentiment": "POSITIVE" | "NEUTRAL" | "NEGATIVE",
  "reasoning": "<2-4 sentences>"
}
POSITIVE favours the home side, NEGATIVE the away side. Use 1.0 when context gives no reason to adjust.`

// LLMAnalyzerConfig configures an LLMAnalyzer.
type LLMAnalyzerConfig struct {
	Name         string
	Client       Completer
	SystemPrompt string
	Logger       *log.Logger
}

// LLMAnalyzer asks a language model for a ContextualAnalysis. It is a
// chain provider: unavailable without a client, failing on transport or
// parse errors, degraded when the reply had to be clamped.
type LLMAnalyzer struct {
	name   string
	client Completer
	system string
	logger *log.Logger
}

// NewLLMAnalyzer creates an analyzer. A nil client yields an analyzer that
// reports itself unavailable.
func NewLLMAnalyzer(cfg LLMAnalyzerConfig) *LLMAnalyzer {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &LLMAnalyzer{
		name:   cfg.Name,
		client: cfg.Client,
		system: cfg.SystemPrompt,
		logger: logging.Component(cfg.Logger, "analysis."+cfg.Name),
	}
}

func (a *LLMAnalyzer) Name() string    { return a.name }
func (a *LLMAnalyzer) Available() bool { return a.client != nil }

// Usage reports the client's token spend when the client tracks it.
func (a *LLMAnalyzer) Usage() (tools.CostSnapshot, bool) {
	c, ok := a.client.(interface{ Cost() *tools.CostTracker })
	if !ok {
		return tools.CostSnapshot{}, false
	}
	return c.Cost().Snapshot(), true
}

// Call runs one analysis.
func (a *LLMAnalyzer) Call(ctx context.Context, mc MatchContext) core.Result[ContextualAnalysis] {
	if a.client == nil {
		return core.Failure[ContextualAnalysis](core.Unavailable(a.name, errors.New("no client configured")))
	}

	response, err := a.client.Complete(ctx, BuildPrompt(mc), a.system)
	if err != nil {
		return core.Failure[ContextualAnalysis](core.FromContext(a.name, fmt.Errorf("LLM call failed: %w", err)))
	}

	analysis, err := ParseAnalysis(response, mc)
	if err != nil {
		a.logger.Warn("unparseable analysis", "err", err, "response_len", len(response))
		return core.Failure[ContextualAnalysis](core.BadResponse(a.name, err))
	}
	analysis.Provider = a.name

	normalized, notes := analysis.Normalize()
	if len(notes) > 0 {
		a.logger.Debug("analysis normalized", "notes", notes)
		return core.Degraded(normalized, strings.Join(notes, "; "))
	}
	return core.Success(normalized)
}

// BuildPrompt renders the user prompt for a fixture.
func BuildPrompt(mc MatchContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Match: %s (home) vs %s (away)\n\n", mc.HomeTeam, mc.AwayTeam)

	b.WriteString("Recent form (most recent first):\n")
	fmt.Fprintf(&b, "- %s: %s\n", mc.HomeTeam, orUnknown(mc.HomeForm))
	fmt.Fprintf(&b, "- %s: %s\n\n", mc.AwayTeam, orUnknown(mc.AwayForm))

	if len(mc.H2H) > 0 {
		fmt.Fprintf(&b, "Head-to-head, last %d meetings (H = %s win, A = %s win, D = draw): %s\n\n",
			len(mc.H2H), mc.HomeTeam, mc.AwayTeam, strings.Join(mc.H2H, " "))
	}

	if ctx := strings.TrimSpace(mc.AdditionalContext); ctx != "" {
		fmt.Fprintf(&b, "Additional context:\n%s\n\n", ctx)
	}

	b.WriteString(`How should the expected goals of each side be adjusted?

Consider:
1. Momentum in recent form
2. Head-to-head patterns
3. Injuries, suspensions and rotation
4. Motivation and fixture congestion

Provide your analysis in JSON format.`)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// ParseAnalysis extracts a ContextualAnalysis from a model reply. Wrapping
// prose and markdown fences are tolerated; a reply without any analysis
// field is an error.
func ParseAnalysis(response string, mc MatchContext) (ContextualAnalysis, error) {
	response = stripMarkdownCodeBlocks(response)

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return ContextualAnalysis{}, fmt.Errorf("no JSON found in response")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return ContextualAnalysis{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	// Some models nest the payload under "analysis".
	if nested, ok := raw["analysis"].(map[string]interface{}); ok {
		raw = nested
	}

	home, hasHome := extractFloat(raw, "home_adjustment", "lambda_adjustment_home")
	away, hasAway := extractFloat(raw, "away_adjustment", "lambda_adjustment_away")
	conf, hasConf := extractFloat(raw, "confidence")
	if !hasHome && !hasAway && !hasConf {
		return ContextualAnalysis{}, fmt.Errorf("no analysis fields in response")
	}
	if !hasHome {
		home = 1.0
	}
	if !hasAway {
		away = 1.0
	}

	// Normalize confidence given as a percentage (e.g. 70 instead of 0.70)
	if conf > 1 && conf <= 100 {
		conf = conf / 100.0
	}
	if !hasConf {
		conf = 0.5
	}

	sentiment := Neutral
	if s := extractString(raw, "sentiment"); s != "" {
		sentiment = Sentiment(strings.ToUpper(s))
	}

	reasoning := extractString(raw, "reasoning")
	if reasoning == "" {
		reasoning = extractString(raw, "rationale")
	}

	return ContextualAnalysis{
		HomeTeam:             mc.HomeTeam,
		AwayTeam:             mc.AwayTeam,
		Confidence:           conf,
		LambdaAdjustmentHome: home,
		LambdaAdjustmentAway: away,
		KeyFactors:           extractStrings(raw, "key_factors"),
		Sentiment:            sentiment,
		Reasoning:            reasoning,
	}, nil
}

// stripMarkdownCodeBlocks removes ```json ... ``` wrappers
func stripMarkdownCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// extractJSON finds the first complete JSON object in a string, skipping
// braces inside string literals.
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString, escaped := false, false

	for i, c := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start == -1 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// extractFloat returns the first key present with a numeric value.
func extractFloat(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func extractString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case string:
			return strings.TrimSpace(val)
		case []interface{}:
			return strings.Join(toStrings(val), " ")
		}
	}
	return ""
}

func extractStrings(m map[string]interface{}, key string) []string {
	switch val := m[key].(type) {
	case []interface{}:
		return toStrings(val)
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	}
	return []string{}
}

func toStrings(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
