package tools

import (
	"fmt"
	"sort"
	"time"
)

// === LLM Router: model selection for match analysis ===

// ModelTier groups presets by cost and latency.
type ModelTier string

const (
	TierLocal    ModelTier = "local"    // Ollama, free and offline
	TierFast     ModelTier = "fast"     // sub-3s cloud models
	TierBalanced ModelTier = "balanced" // quality/cost middle ground
	TierElite    ModelTier = "elite"    // highest quality
)

// ModelPreset contains curated model configurations
type ModelPreset struct {
	Name              string
	Provider          string
	Model             string
	BaseURL           string
	Description       string
	Tier              ModelTier
	AvgLatency        time.Duration
	CostPer1k         float64 // USD per 1k tokens (avg prompt+completion)
	RequestsPerMinute int
}

// ModelRouter resolves preset names and tiers into ready LLMConfigs.
type ModelRouter struct {
	presets map[ModelTier][]ModelPreset
	apiKeys map[string]string // provider -> key
}

// NewModelRouter creates a router with curated presets. apiKeys maps a
// provider name ("gemini", "blackbox", "anthropic", ...) to its key.
func NewModelRouter(apiKeys map[string]string) *ModelRouter {
	keys := make(map[string]string, len(apiKeys))
	for k, v := range apiKeys {
		keys[k] = v
	}
	router := &ModelRouter{
		presets: make(map[ModelTier][]ModelPreset),
		apiKeys: keys,
	}
	router.initPresets()
	return router
}

func (r *ModelRouter) initPresets() {
	r.presets[TierFast] = []ModelPreset{
		{
			Name:              "gemini",
			Provider:          "gemini",
			Model:             DefaultGeminiConfig.Model,
			BaseURL:           DefaultGeminiConfig.BaseURL,
			Description:       "Google Gemini Flash, tactical analyst",
			Tier:              TierFast,
			AvgLatency:        2 * time.Second,
			CostPer1k:         0.00025,
			RequestsPerMinute: DefaultGeminiConfig.RequestsPerMinute,
		},
		{
			Name:              "blackbox",
			Provider:          "blackbox",
			Model:             DefaultBlackboxConfig.Model,
			BaseURL:           DefaultBlackboxConfig.BaseURL,
			Description:       "Blackbox AI, statistical analyst",
			Tier:              TierFast,
			AvgLatency:        3 * time.Second,
			CostPer1k:         0.0004,
			RequestsPerMinute: DefaultBlackboxConfig.RequestsPerMinute,
		},
	}

	r.presets[TierBalanced] = []ModelPreset{
		{
			Name:        "deepseek",
			Provider:    "deepseek",
			Model:       "deepseek-chat",
			BaseURL:     "https://api.deepseek.com/v1",
			Description: "DeepSeek V3, cheap and strong at structured output",
			Tier:        TierBalanced,
			AvgLatency:  5 * time.Second,
			CostPer1k:   0.0002,
		},
		{
			Name:        "openrouter",
			Provider:    "openrouter",
			Model:       DefaultOpenRouterConfig.Model,
			BaseURL:     DefaultOpenRouterConfig.BaseURL,
			Description: "Gemini Flash-Lite through OpenRouter",
			Tier:        TierBalanced,
			AvgLatency:  3 * time.Second,
			CostPer1k:   0.00025,
		},
	}

	r.presets[TierElite] = []ModelPreset{
		{
			Name:        "claude",
			Provider:    "anthropic",
			Model:       DefaultAnthropicConfig.Model,
			BaseURL:     DefaultAnthropicConfig.BaseURL,
			Description: "Claude Sonnet, best qualitative reasoning",
			Tier:        TierElite,
			AvgLatency:  10 * time.Second,
			CostPer1k:   0.009,
		},
	}

	r.presets[TierLocal] = []ModelPreset{
		{
			Name:        "ollama",
			Provider:    "ollama",
			Model:       DefaultOllamaConfig.Model,
			BaseURL:     DefaultOllamaConfig.BaseURL,
			Description: "Local Llama 3.2 via Ollama",
			Tier:        TierLocal,
			AvgLatency:  8 * time.Second,
		},
		{
			Name:        "mock",
			Provider:    "mock",
			Model:       "mock-model",
			BaseURL:     "mock://",
			Description: "Canned neutral analysis for offline runs",
			Tier:        TierLocal,
		},
	}
}

func (r *ModelRouter) keyFor(provider string) string {
	switch provider {
	case "ollama", "mock":
		return provider
	default:
		return r.apiKeys[provider]
	}
}

func (r *ModelRouter) configFor(preset ModelPreset) LLMConfig {
	return LLMConfig{
		Provider:          preset.Provider,
		Model:             preset.Model,
		Preset:            preset.Name,
		APIKey:            r.keyFor(preset.Provider),
		BaseURL:           preset.BaseURL,
		MaxTokens:         2048,
		Temperature:       0.3,
		Timeout:           60 * time.Second,
		RequestsPerMinute: preset.RequestsPerMinute,
		RetryPolicy:       RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond},
	}
}

// GetConfig returns an LLMConfig for the specified tier and index
func (r *ModelRouter) GetConfig(tier ModelTier, index int) (LLMConfig, error) {
	preset, err := r.presetAt(tier, index)
	if err != nil {
		return LLMConfig{}, err
	}
	return r.configFor(preset), nil
}

// presetAt returns the preset at index within tier.
func (r *ModelRouter) presetAt(tier ModelTier, index int) (ModelPreset, error) {
	presets, ok := r.presets[tier]
	if !ok {
		return ModelPreset{}, fmt.Errorf("unknown tier: %s", tier)
	}
	if index < 0 || index >= len(presets) {
		return ModelPreset{}, fmt.Errorf("index %d out of range for tier %s (has %d models)", index, tier, len(presets))
	}
	return presets[index], nil
}

// GetPresetByName finds a preset by name
func (r *ModelRouter) GetPresetByName(name string) (ModelPreset, error) {
	for _, presets := range r.presets {
		for _, preset := range presets {
			if preset.Name == name {
				return preset, nil
			}
		}
	}
	return ModelPreset{}, fmt.Errorf("model not found: %s", name)
}

// GetConfigByName finds a model by name across all tiers
func (r *ModelRouter) GetConfigByName(name string) (LLMConfig, error) {
	preset, err := r.GetPresetByName(name)
	if err != nil {
		return LLMConfig{}, err
	}
	return r.configFor(preset), nil
}

// Configured reports whether the named preset has what it needs to run.
func (r *ModelRouter) Configured(name string) bool {
	preset, err := r.GetPresetByName(name)
	if err != nil {
		return false
	}
	return r.keyFor(preset.Provider) != ""
}

// Names lists every preset name, sorted.
func (r *ModelRouter) Names() []string {
	var names []string
	for _, presets := range r.presets {
		for _, p := range presets {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}

// GetBestFor returns the preset for an analyst role or use case, such as
// "primary", "secondary", "elite" or "local".
func (r *ModelRouter) GetBestFor(useCase string) (LLMConfig, error) {
	switch useCase {
	case "tactical", "primary":
		return r.GetConfigByName("gemini")
	case "statistical", "secondary":
		return r.GetConfigByName("blackbox")
	case "fast":
		return r.GetConfig(TierFast, 0)
	case "elite", "quality":
		return r.GetConfig(TierElite, 0)
	case "cheap", "balanced":
		return r.GetConfig(TierBalanced, 0)
	case "local", "offline":
		return r.GetConfig(TierLocal, 0)
	case "mock", "test":
		return r.GetConfigByName("mock")
	default:
		return LLMConfig{}, fmt.Errorf("unknown use case: %s", useCase)
	}
}
