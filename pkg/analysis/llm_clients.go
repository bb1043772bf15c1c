package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/tools"
)

// LLMToolClient adapts a tools.LLMTool to Completer.
type LLMToolClient struct {
	tool *tools.LLMTool
}

// NewLLMToolClient creates a Completer from an LLMConfig.
func NewLLMToolClient(config tools.LLMConfig) *LLMToolClient {
	return &LLMToolClient{tool: tools.NewLLMTool(config)}
}

// Complete implements Completer.
func (c *LLMToolClient) Complete(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	resp, err := c.tool.Complete(ctx, &tools.LLMRequest{
		Messages: []tools.LLMMessage{{Role: "user", Content: prompt}},
		System:   systemPrompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Cost returns the cost tracker for this client.
func (c *LLMToolClient) Cost() *tools.CostTracker {
	return c.tool.Cost()
}

// AnalyzerFromRouter builds an LLMAnalyzer for a preset name or a router
// use case ("primary", "elite", "local", ...). A preset without
// credentials yields an analyzer that reports itself unavailable, so
// chains skip it without a network attempt.
func AnalyzerFromRouter(router *tools.ModelRouter, name string, logger *log.Logger) (*LLMAnalyzer, error) {
	cfg, err := router.GetConfigByName(name)
	if err != nil {
		if cfg, err = router.GetBestFor(name); err != nil {
			return nil, fmt.Errorf("analyzer %q: want a use case or one of %s", name, strings.Join(router.Names(), ", "))
		}
	}
	var client Completer
	if router.Configured(cfg.Preset) {
		client = NewLLMToolClient(cfg)
	}
	return NewLLMAnalyzer(LLMAnalyzerConfig{Name: cfg.Preset, Client: client, Logger: logger}), nil
}
