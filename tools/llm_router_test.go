package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/core"
)

func TestModelRouter(t *testing.T) {
	router := NewModelRouter(map[string]string{"gemini": "g-key", "blackbox": "b-key"})

	tiers := []struct {
		name  string
		tier  ModelTier
		index int
	}{
		{"Fast", TierFast, 0},
		{"Balanced", TierBalanced, 0},
		{"Elite", TierElite, 0},
		{"Local", TierLocal, 0},
	}

	for _, tt := range tiers {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := router.GetConfig(tt.tier, tt.index)
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Model)
			assert.NotEmpty(t, cfg.BaseURL)
			assert.NotEmpty(t, cfg.Provider)
			assert.NotEmpty(t, cfg.Preset)
		})
	}

	_, err := router.GetConfig(TierElite, 5)
	assert.Error(t, err)
	_, err = router.GetConfig(ModelTier("nope"), 0)
	assert.Error(t, err)
}

func TestRouterInjectsKeys(t *testing.T) {
	router := NewModelRouter(map[string]string{"gemini": "g-key"})

	cfg, err := router.GetConfigByName("gemini")
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.APIKey)
	assert.Equal(t, "gemini", cfg.Preset)

	assert.False(t, router.Configured("blackbox"), "blackbox has no key")
	assert.True(t, router.Configured("ollama"), "ollama needs no key")
	assert.False(t, router.Configured("nope"))
}

func TestRouterGetBestFor(t *testing.T) {
	router := NewModelRouter(nil)

	tests := []struct {
		useCase string
		want    string
	}{
		{"primary", "gemini"},
		{"tactical", "gemini"},
		{"secondary", "blackbox"},
		{"statistical", "blackbox"},
		{"fast", "gemini"},
		{"elite", "claude"},
		{"balanced", "deepseek"},
		{"local", "ollama"},
		{"test", "mock"},
	}
	for _, tt := range tests {
		t.Run(tt.useCase, func(t *testing.T) {
			cfg, err := router.GetBestFor(tt.useCase)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Preset)
		})
	}

	_, err := router.GetBestFor("hal-9000")
	assert.Error(t, err)
}

func TestRouterNames(t *testing.T) {
	names := NewModelRouter(nil).Names()
	assert.Equal(t, []string{"blackbox", "claude", "deepseek", "gemini", "mock", "ollama", "openrouter"}, names)
}

func newOpenAIServer(t *testing.T, status int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}

		var body struct {
			Messages []LLMMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role, "system prompt forwarded")
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gemini-2.0-flash",
			"choices": []map[string]any{{
				"message":       map[string]string{"content": `{"confidence": 0.7}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 20, "total_tokens": 120},
		})
	}))
}

func TestCompleteOpenAICompatible(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, http.StatusOK, &calls)
	defer srv.Close()

	tool := NewLLMTool(LLMConfig{Provider: "gemini", Model: "gemini-2.0-flash", APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second})
	resp, err := tool.Complete(context.Background(), &LLMRequest{
		System:   "you are an analyst",
		Messages: []LLMMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "0.7")
	assert.Equal(t, int64(120), tool.Cost().Snapshot().TotalTokens)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, http.StatusServiceUnavailable, &calls)
	defer srv.Close()

	tool := NewLLMTool(LLMConfig{
		Provider: "blackbox", APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second,
		RetryPolicy: RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond},
	})
	_, err := tool.Complete(context.Background(), &LLMRequest{Messages: []LLMMessage{{Role: "user", Content: "hi"}}})
	require.ErrorIs(t, err, core.ErrProviderUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCompleteDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, http.StatusBadRequest, &calls)
	defer srv.Close()

	tool := NewLLMTool(LLMConfig{
		Provider: "openai", APIKey: "k", BaseURL: srv.URL,
		RetryPolicy: RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond},
	})
	_, err := tool.Complete(context.Background(), &LLMRequest{Messages: []LLMMessage{{Role: "user", Content: "hi"}}})
	require.ErrorIs(t, err, core.ErrProviderBadResponse)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCompleteMock(t *testing.T) {
	tool := NewLLMTool(LLMConfig{Provider: "mock", Model: "mock-model"})
	require.True(t, tool.Configured(), "mock needs no key")
	resp, err := tool.Complete(context.Background(), &LLMRequest{Messages: []LLMMessage{{Role: "user", Content: "analyze"}}})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "home_adjustment")
}

func TestCompleteRejectsEmptyRequest(t *testing.T) {
	tool := NewLLMTool(DefaultGeminiConfig)
	_, err := tool.Complete(context.Background(), &LLMRequest{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestCostTracker(t *testing.T) {
	var c CostTracker
	c.AddUsage(1000, 1000, "gemini-2.0-flash")
	want := 1000*0.0000001 + 1000*0.0000004
	assert.InDelta(t, want, c.LastCost(), 1e-12)
	assert.Equal(t, int64(2000), c.Snapshot().TotalTokens)
}
