// Package tools holds the outbound LLM client and the model router that
// picks provider configurations for the analysis layer.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/phenomenon0/bet-copilot/core"
)

// === LLM Tool Configuration ===

type LLMConfig struct {
	Provider    string // "openai", "gemini", "blackbox", "anthropic", "ollama", "deepseek", "openrouter", "mock"
	Model       string
	Preset      string // optional preset name from router
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	RetryPolicy RetryPolicy

	// RequestsPerMinute throttles outbound calls. Zero disables throttling.
	RequestsPerMinute int
}

type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// CostTracker accumulates token usage. Safe for concurrent use.
type CostTracker struct {
	mu               sync.Mutex
	totalTokens      int64
	promptTokens     int64
	completionTokens int64
	estimatedCostUSD float64
	lastCost         float64
}

// CostSnapshot is a copy of the tracker totals.
type CostSnapshot struct {
	TotalTokens      int64   `json:"total_tokens"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Rough rate table (USD per token); unknown models use a heuristic.
var modelRates = []struct {
	match       string
	inputRate   float64
	outputRate  float64
	matchPrefix bool
}{
	{"gemini-2.5-flash-lite", 0.0000001, 0.0000004, false},
	{"gemini-2.5-flash", 0.0000003, 0.0000025, false},
	{"gemini-2.5-pro", 0.00000125, 0.000010, false},
	{"gemini-2.0-flash", 0.0000001, 0.0000004, false},
	{"claude-sonnet-4", 0.000003, 0.000015, false},
	{"claude-3-haiku", 0.00000025, 0.00000125, false},
	{"gpt-4o-mini", 0.000000150, 0.000000600, false},
	{"gpt-4o", 0.0000050, 0.0000150, true},
	{"deepseek-r1", 0.0000004, 0.00000175, false},
	{"deepseek", 0.00000014, 0.00000028, true},
	{"blackbox", 0.0000002, 0.0000006, true},
	{"llama", 0.0, 0.0, true},
	{"qwen", 0.0, 0.0, true},
	{"mock", 0.0, 0.0, true},
}

func rateForModel(model string) (float64, float64, bool) {
	lower := strings.ToLower(model)
	for _, r := range modelRates {
		if r.matchPrefix {
			if strings.HasPrefix(lower, r.match) {
				return r.inputRate, r.outputRate, true
			}
		} else if strings.Contains(lower, r.match) {
			return r.inputRate, r.outputRate, true
		}
	}
	return 0, 0, false
}

func calculateCost(model string, promptTokens, completionTokens int) float64 {
	if in, out, ok := rateForModel(model); ok {
		return (float64(promptTokens) * in) + (float64(completionTokens) * out)
	}

	// Fallback heuristic: $5 / $15 per 1M tokens
	rateInput := 0.000005
	rateOutput := 0.000015
	return (float64(promptTokens) * rateInput) + (float64(completionTokens) * rateOutput)
}

func (c *CostTracker) AddUsage(prompt, completion int, model string) {
	cost := calculateCost(model, prompt, completion)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptTokens += int64(prompt)
	c.completionTokens += int64(completion)
	c.totalTokens += int64(prompt + completion)
	c.estimatedCostUSD += cost
	c.lastCost = cost
}

func (c *CostTracker) LastCost() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCost
}

func (c *CostTracker) Snapshot() CostSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CostSnapshot{
		TotalTokens:      c.totalTokens,
		PromptTokens:     c.promptTokens,
		CompletionTokens: c.completionTokens,
		EstimatedCostUSD: c.estimatedCostUSD,
	}
}

var DefaultGeminiConfig = LLMConfig{
	Provider:          "gemini",
	Model:             "gemini-2.0-flash",
	BaseURL:           "https://generativelanguage.googleapis.com/v1beta/openai",
	MaxTokens:         2048,
	Temperature:       0.3,
	Timeout:           30 * time.Second,
	RequestsPerMinute: 15,
}

var DefaultBlackboxConfig = LLMConfig{
	Provider:          "blackbox",
	Model:             "blackboxai/openai/gpt-4o-mini",
	BaseURL:           "https://api.blackbox.ai",
	MaxTokens:         2048,
	Temperature:       0.3,
	Timeout:           30 * time.Second,
	RequestsPerMinute: 30,
}

var DefaultAnthropicConfig = LLMConfig{
	Provider:    "anthropic",
	Model:       "claude-sonnet-4-20250514",
	BaseURL:     "https://api.anthropic.com/v1",
	MaxTokens:   2048,
	Temperature: 0.3,
	Timeout:     60 * time.Second,
}

var DefaultOllamaConfig = LLMConfig{
	Provider:    "ollama",
	Model:       "llama3.2",
	BaseURL:     "http://localhost:11434",
	MaxTokens:   2048,
	Temperature: 0.3,
	Timeout:     120 * time.Second,
}

var DefaultOpenRouterConfig = LLMConfig{
	Provider:    "openrouter",
	Model:       "google/gemini-2.5-flash-lite",
	BaseURL:     "https://openrouter.ai/api/v1",
	MaxTokens:   2048,
	Temperature: 0.3,
	Timeout:     60 * time.Second,
}

// === LLM Request/Response ===

type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type LLMRequest struct {
	Messages    []LLMMessage `json:"messages"`
	System      string       `json:"system,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type LLMResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// statusError is a non-2xx reply from a provider.
type statusError struct {
	provider string
	code     int
	body     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.provider, e.code, e.body)
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return !errors.Is(err, core.ErrProviderBadResponse)
}

// === LLM Tool ===

type LLMTool struct {
	config      LLMConfig
	client      *http.Client
	limiter     *rate.Limiter
	costTracker *CostTracker
}

func NewLLMTool(config LLMConfig) *LLMTool {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &LLMTool{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		limiter:     limiter,
		costTracker: &CostTracker{},
	}
}

func (t *LLMTool) Cost() *CostTracker {
	return t.costTracker
}

func (t *LLMTool) Config() LLMConfig {
	return t.config
}

// Name is the preset name, or the provider when no preset is set.
func (t *LLMTool) Name() string {
	if t.config.Preset != "" {
		return t.config.Preset
	}
	return t.config.Provider
}

// Configured reports whether the tool can make calls at all.
func (t *LLMTool) Configured() bool {
	switch t.config.Provider {
	case "ollama", "mock":
		return true
	default:
		return t.config.APIKey != ""
	}
}

func (t *LLMTool) applyDefaults(req *LLMRequest) {
	if req.MaxTokens == 0 {
		req.MaxTokens = t.config.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = t.config.Temperature
	}
}

// Complete sends req and returns the model reply. Failures are
// *core.ProviderError values so callers can classify them.
func (t *LLMTool) Complete(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, core.InvalidInput("empty LLM request")
	}
	r := *req
	t.applyDefaults(&r)
	name := t.Name()

	maxRetries := t.config.RetryPolicy.MaxRetries
	if maxRetries == 0 {
		maxRetries = 1
	}

	var (
		resp *LLMResponse
		err  error
	)
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.config.RetryPolicy.Backoff * time.Duration(i)):
			}
		}
		if t.limiter != nil {
			if werr := t.limiter.Wait(ctx); werr != nil {
				return nil, core.FromContext(name, werr)
			}
		}

		switch t.config.Provider {
		case "openai", "openrouter", "deepseek", "gemini", "blackbox":
			resp, err = t.callOpenAI(ctx, &r)
		case "anthropic":
			resp, err = t.callAnthropic(ctx, &r)
		case "ollama":
			resp, err = t.callOllama(ctx, &r)
		case "mock":
			resp, err = t.callMock(ctx, &r)
		default:
			return nil, core.InvalidInput("unknown provider: %s", t.config.Provider)
		}

		if err == nil {
			break
		}
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			break
		}
		if !retryable(err) {
			break
		}
	}

	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			switch se.code {
			case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
				return nil, core.BadResponse(name, err)
			}
		}
		return nil, core.FromContext(name, err)
	}

	t.costTracker.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Model)
	return resp, nil
}

// === Provider Implementations ===

func (t *LLMTool) post(ctx context.Context, url string, payload any, headers map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{provider: t.config.Provider, code: resp.StatusCode, body: string(b)}
	}
	return resp, nil
}

func (t *LLMTool) callOpenAI(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	messages := req.Messages
	if req.System != "" {
		messages = append([]LLMMessage{{Role: "system", Content: req.System}}, req.Messages...)
	}

	openaiReq := map[string]any{
		"model":    t.config.Model,
		"messages": messages,
	}

	// Reasoning models only accept max_completion_tokens and the default temperature.
	if strings.HasPrefix(t.config.Model, "o1") || strings.HasPrefix(t.config.Model, "o3") {
		openaiReq["max_completion_tokens"] = req.MaxTokens
	} else {
		openaiReq["max_tokens"] = req.MaxTokens
		openaiReq["temperature"] = req.Temperature
	}

	headers := map[string]string{"Authorization": "Bearer " + t.config.APIKey}
	if t.config.Provider == "openrouter" {
		headers["HTTP-Referer"] = "https://github.com/phenomenon0/bet-copilot"
		headers["X-Title"] = "Bet Copilot"
	}

	resp, err := t.post(ctx, strings.TrimRight(t.config.BaseURL, "/")+"/chat/completions", openaiReq, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var openaiResp struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				Reasoning string `json:"reasoning"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage  `json:"usage"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return nil, core.BadResponse(t.Name(), err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, core.BadResponse(t.Name(), errors.New("no choices in response"))
	}

	// Some models put the answer in "reasoning" and leave "content" empty.
	content := openaiResp.Choices[0].Message.Content
	if content == "" && openaiResp.Choices[0].Message.Reasoning != "" {
		content = openaiResp.Choices[0].Message.Reasoning
	}
	model := openaiResp.Model
	if model == "" {
		model = t.config.Model
	}

	return &LLMResponse{
		Content:      content,
		Model:        model,
		FinishReason: openaiResp.Choices[0].FinishReason,
		Usage:        openaiResp.Usage,
	}, nil
}

func (t *LLMTool) callAnthropic(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	anthropicReq := map[string]any{
		"model":       t.config.Model,
		"max_tokens":  req.MaxTokens,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.System != "" {
		anthropicReq["system"] = req.System
	}

	resp, err := t.post(ctx, strings.TrimRight(t.config.BaseURL, "/")+"/messages", anthropicReq, map[string]string{
		"x-api-key":         t.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var anthropicResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return nil, core.BadResponse(t.Name(), err)
	}

	var content strings.Builder
	for _, c := range anthropicResp.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}

	return &LLMResponse{
		Content:      content.String(),
		Model:        anthropicResp.Model,
		FinishReason: anthropicResp.StopReason,
		Usage: Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}, nil
}

func (t *LLMTool) callOllama(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	messages := req.Messages
	if req.System != "" {
		messages = append([]LLMMessage{{Role: "system", Content: req.System}}, req.Messages...)
	}
	ollamaReq := map[string]any{
		"model":    t.config.Model,
		"messages": messages,
		"stream":   false,
		"format":   "json",
		"options": map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	resp, err := t.post(ctx, strings.TrimRight(t.config.BaseURL, "/")+"/api/chat", ollamaReq, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ollamaResp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Model           string `json:"model"`
		Done            bool   `json:"done"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, core.BadResponse(t.Name(), err)
	}

	finishReason := "stop"
	if !ollamaResp.Done {
		finishReason = "length"
	}

	return &LLMResponse{
		Content:      ollamaResp.Message.Content,
		Model:        ollamaResp.Model,
		FinishReason: finishReason,
		Usage: Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}, nil
}

// callMock returns a neutral analysis so the pipeline can run without keys.
func (t *LLMTool) callMock(_ context.Context, req *LLMRequest) (*LLMResponse, error) {
	content := "```json\n" + `{"home_adjustment": 1.0, "away_adjustment": 1.0, "confidence": 0.55, ` +
		`"key_factors": ["mock analysis"], "sentiment": "NEUTRAL", "reasoning": "Mock response, no model was called."}` +
		"\n```"

	prompt := estimatePromptTokens(req)
	completion := estimateTokens(content)
	return &LLMResponse{
		Content:      content,
		Model:        "mock-model",
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// ~4 characters per token for mixed English.
	return (len(text) + 3) / 4
}

func estimatePromptTokens(req *LLMRequest) int {
	if req == nil {
		return 0
	}
	total := estimateTokens(req.System)
	for _, msg := range req.Messages {
		total += estimateTokens(msg.Content)
	}
	return total
}
